package swarm

import "github.com/Protocol-Lattice/agentforum/src/models"

// Profile is the role data a Worker is built from.
type Profile struct {
	ID          string `yaml:"id" json:"id"`
	Role        string `yaml:"role" json:"role"`
	Perspective string `yaml:"perspective" json:"perspective"`
}

// Build creates a worker with this profile.
func (p Profile) Build(oracle models.Oracle, opts ...Option) *Worker {
	return New(p.ID, p.Role, p.Perspective, oracle, opts...)
}

// Forum panel.
var (
	QueryAgent = Profile{
		ID:          "QueryAgent",
		Role:        "web research specialist",
		Perspective: "follows the latest research, news coverage and public discussion",
	}
	InsightAgent = Profile{
		ID:          "InsightAgent",
		Role:        "data analysis specialist",
		Perspective: "focuses on statistics, trends and quantitative indicators",
	}
	MediaAgent = Profile{
		ID:          "MediaAgent",
		Role:        "media and public opinion analyst",
		Perspective: "watches social media sentiment, public perception and reach",
	}
)

// Research team.
var (
	ResearchAgent = Profile{
		ID:          "Researcher",
		Role:        "information research specialist",
		Perspective: "searching, organising and summarising information from the web",
	}
	AnalystAgent = Profile{
		ID:          "Analyst",
		Role:        "data analysis specialist",
		Perspective: "analysing data, spotting patterns and drawing insights",
	}
	WriterAgent = Profile{
		ID:          "Writer",
		Role:        "professional writer",
		Perspective: "turning complex information into clear, readable reports",
	}
	CoordinatorAgent = Profile{
		ID:          "Coordinator",
		Role:        "team coordinator",
		Perspective: "breaking down tasks, coordinating the team and checking quality",
	}
)

// ForumPanel is the default forum roster, in speaking order.
func ForumPanel() []Profile {
	return []Profile{QueryAgent, InsightAgent, MediaAgent}
}
