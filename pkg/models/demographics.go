package models

// Demographics is the validated result recorded on a COMPLETED job.
type Demographics struct {
	AgeRange   string   `json:"ageRange"   bson:"ageRange"`
	Gender     string   `json:"gender"     bson:"gender"`
	Location   string   `json:"location"   bson:"location"`
	Interests  []string `json:"interests"  bson:"interests"`
	Confidence float64  `json:"confidence" bson:"confidence"`
}
