package analysis

func SetIDGenerator(s *Service, f func() string) { s.newID = f }
