package config

// NewGeminiForTest creates a Gemini config for testing purposes
func NewGeminiForTest(projectID, location string) *Gemini {
	return &Gemini{
		projectID: projectID,
		location:  location,
	}
}

// NewNotifyForTest creates a Notify config for testing purposes
func NewNotifyForTest(slackBotToken, slackChannelID string) *Notify {
	return &Notify{
		slackBotToken:  slackBotToken,
		slackChannelID: slackChannelID,
	}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, sqlitePath string) *Repository {
	return &Repository{
		backend:    backend,
		sqlitePath: sqlitePath,
	}
}
