package usecase

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/domain/interfaces"
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/domain/types"
	"github.com/m-mizutani/scribe/pkg/workflow"
)

type summarizeUseCase struct {
	store  interfaces.Store
	engine *workflow.Engine
}

// NewSummarize creates the use case that runs the summarization workflow for
// one dispatched event and records its outcome. The workflow stages get the
// store as their similarity index.
func NewSummarize(
	store interfaces.Store,
	generator interfaces.SummaryGenerator,
	grader interfaces.GroundednessGrader,
	embedder interfaces.Embedder,
) interfaces.SummarizeUseCase {
	stages := workflow.NewStages(generator, grader, embedder, store)
	return &summarizeUseCase{
		store:  store,
		engine: stages.Engine(),
	}
}

// ProcessEvent runs one workflow. Already-processed and already-errored
// events are skipped so queue redelivery and sweep re-publication stay
// harmless. Any terminal failure marks the event errored; the partial
// workflow state is discarded, never committed.
func (uc *summarizeUseCase) ProcessEvent(ctx context.Context, msg *model.DispatchMessage) error {
	logger := ctxlog.From(ctx)

	event, err := uc.store.GetEvent(ctx, msg.EventID)
	if err != nil {
		return goerr.Wrap(err, "failed to load dispatched event",
			goerr.V("event_id", msg.EventID))
	}

	if event.Processed {
		logger.Info("event already processed, skipping", "event_id", event.ID)
		return nil
	}
	if event.Errored {
		logger.Warn("event marked errored, skipping", "event_id", event.ID)
		return nil
	}

	payload, err := model.ParseEventPayload(event.Payload)
	if err != nil {
		uc.markErrored(ctx, event.ID)
		return goerr.Wrap(err, "stored payload is not parsable", goerr.V("event_id", event.ID))
	}

	final, err := uc.engine.Run(ctx, workflow.NewState(payload))
	if err != nil {
		uc.markErrored(ctx, event.ID)
		return goerr.Wrap(err, "workflow run failed", goerr.V("event_id", event.ID))
	}

	record := &model.SummaryRecord{
		EventID:     event.ID,
		OccurredAt:  event.OccurredAt,
		SummaryText: final.Summary,
		TechStack:   deriveTechStack(final.Meta),
		Embedding:   final.Embedding,
		Status:      final.Status,
	}
	if err := uc.store.CompleteEvent(ctx, record); err != nil {
		uc.markErrored(ctx, event.ID)
		return goerr.Wrap(err, "failed to commit summary", goerr.V("event_id", event.ID))
	}

	logger.Info("event summarized",
		"event_id", event.ID,
		"status", final.Status,
		"retries", final.Retries,
		"similarity", final.SimilarityScore,
	)
	return nil
}

func (uc *summarizeUseCase) markErrored(ctx context.Context, id types.EventID) {
	if err := uc.store.MarkEventErrored(ctx, id); err != nil {
		ctxlog.From(ctx).Error("failed to mark event errored",
			"event_id", id, "error", err)
	}
}

// techStackByExt maps changed-file extensions to tech-stack tags stored on
// the summary.
var techStackByExt = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".rs":    "Rust",
	".rb":    "Ruby",
	".java":  "Java",
	".kt":    "Kotlin",
	".c":     "C",
	".cc":    "C++",
	".cpp":   "C++",
	".sql":   "SQL",
	".tf":    "Terraform",
	".sh":    "Shell",
	".yaml":  "YAML",
	".yml":   "YAML",
	".proto": "Protobuf",
}

func deriveTechStack(meta *model.EventMeta) []string {
	if meta == nil {
		return nil
	}

	seen := map[string]bool{}
	for _, file := range meta.Files {
		base := path.Base(file)
		if base == "Dockerfile" {
			seen["Docker"] = true
			continue
		}
		if tag, ok := techStackByExt[strings.ToLower(path.Ext(base))]; ok {
			seen[tag] = true
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
