package services

import (
	"math/rand"
	"sync"
)

// Headline is one entry in the spot-the-satire game.
type Headline struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

// HeadlinesRound is one shuffled round: four headlines, one of them satire.
type HeadlinesRound struct {
	Items       []Headline `json:"items"`
	AnswerIndex int        `json:"answerIndex"`
}

var realHeadlines = []Headline{
	{Title: "Global renewable capacity grew 50% last year, agency reports", Source: "wire"},
	{Title: "Researchers map complete neural wiring of a fruit fly brain", Source: "wire"},
	{Title: "Central bank holds interest rates steady for third quarter", Source: "wire"},
	{Title: "New deep-sea survey catalogs hundreds of unknown species", Source: "wire"},
	{Title: "City converts disused rail line into elevated public park", Source: "wire"},
	{Title: "Astronomers confirm water vapor in distant exoplanet atmosphere", Source: "wire"},
	{Title: "National library digitizes million-page newspaper archive", Source: "wire"},
	{Title: "Farmers adopt drone-based crop monitoring at record pace", Source: "wire"},
}

var satireHeadlines = []Headline{
	{Title: "Area man finally reads terms of service, immediately regrets it", Source: "satire"},
	{Title: "Nation's plants announce they will now water themselves", Source: "satire"},
	{Title: "Local cat elected neighborhood watch president in landslide", Source: "satire"},
	{Title: "Study finds 100% of mondays occur at worst possible time", Source: "satire"},
	{Title: "Government unveils plan to relocate monday to the weekend", Source: "satire"},
}

// HeadlinesService deals rounds of the headlines game.
type HeadlinesService struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewHeadlinesService creates a HeadlinesService with the given seed source.
func NewHeadlinesService(seed int64) *HeadlinesService {
	return &HeadlinesService{rng: rand.New(rand.NewSource(seed))}
}

// Round deals three real headlines and one satire headline, shuffled, with
// the satire's position as the answer.
func (s *HeadlinesService) Round() HeadlinesRound {
	s.mu.Lock()
	defer s.mu.Unlock()

	realPick := s.rng.Perm(len(realHeadlines))[:3]
	items := make([]Headline, 0, 4)
	for _, i := range realPick {
		items = append(items, realHeadlines[i])
	}
	satire := satireHeadlines[s.rng.Intn(len(satireHeadlines))]

	answer := s.rng.Intn(4)
	items = append(items, Headline{})
	copy(items[answer+1:], items[answer:])
	items[answer] = satire

	return HeadlinesRound{Items: items, AnswerIndex: answer}
}
