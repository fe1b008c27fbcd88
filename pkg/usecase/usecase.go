package usecase

import (
	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/service/notify"
	"github.com/doppel-lab/keryx/pkg/service/recall"
	"github.com/doppel-lab/keryx/pkg/service/summary"
	"github.com/m-mizutani/gollem"
)

type UseCases struct {
	repo          interfaces.Repository
	llmClient     gollem.LLMClient
	recallService recall.Service
	summarySvc    summary.Service
	notifySvc     *notify.Service
	summaryWindow int

	Access      *AccessUseCase
	Agent       *AgentUseCase
	Answer      *AnswerUseCase
	Consolidate *ConsolidateUseCase
	Summarize   *SummarizeUseCase
	Escalation  *EscalationUseCase
	Ingest      *IngestUseCase
	Metrics     *MetricsUseCase
	Config      *ConfigUseCase
}

type Option func(*UseCases)

// WithRecallService sets the memory extraction service. Without it,
// post-turn memory capture is disabled.
func WithRecallService(svc recall.Service) Option {
	return func(uc *UseCases) {
		uc.recallService = svc
	}
}

// WithSummaryService sets the conversation summarizer. Without it,
// summarization is disabled.
func WithSummaryService(svc summary.Service) Option {
	return func(uc *UseCases) {
		uc.summarySvc = svc
	}
}

// WithNotifyService sets the owner notification service
func WithNotifyService(svc *notify.Service) Option {
	return func(uc *UseCases) {
		uc.notifySvc = svc
	}
}

// WithSummaryWindow overrides the summarization window size
func WithSummaryWindow(n int) Option {
	return func(uc *UseCases) {
		if n > 0 {
			uc.summaryWindow = n
		}
	}
}

// New wires all use cases. llmClient may be nil; the pipeline then runs
// without embeddings or generation and answers degrade to clarification
// and escalation paths.
func New(repo interfaces.Repository, llmClient gollem.LLMClient, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:          repo,
		llmClient:     llmClient,
		summaryWindow: DefaultSummaryWindow,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Access = NewAccessUseCase(repo)
	uc.Agent = NewAgentUseCase(repo)
	uc.Config = NewConfigUseCase(repo)
	uc.Consolidate = NewConsolidateUseCase(repo, uc.recallService)
	uc.Summarize = NewSummarizeUseCase(repo, uc.summarySvc, uc.summaryWindow)
	uc.Escalation = NewEscalationUseCase(repo, llmClient)
	uc.Ingest = NewIngestUseCase(repo, llmClient)
	uc.Metrics = NewMetricsUseCase(repo)
	uc.Answer = NewAnswerUseCase(repo, llmClient, uc.Access, uc.Consolidate, uc.Summarize, uc.notifySvc)

	return uc
}
