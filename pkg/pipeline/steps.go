package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/chunker"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
)

// execute runs one stage and reports its outcome. A returned error ends
// the run.
func (ru *run) execute(ctx context.Context, stage Stage) (Event, error) {
	switch stage {
	case StageLanguageCheck:
		return ru.languageCheck()
	case StageQualityAssess:
		return ru.qualityAssess(ctx)
	case StageClassify:
		return ru.classify(ctx)
	case StageClean:
		ru.text = chunker.Clean(ru.text)
		return EventDone, nil
	case StageStripMetadata:
		ru.text = chunker.StripMetadata(ru.text, ru.r.cfg.Metadata)
		return EventDone, nil
	case StageChunk:
		return ru.chunk(ctx)
	case StageDetectNames:
		return ru.detectNames(ctx)
	case StageSummarize:
		return ru.summarize(ctx)
	case StageRedetectNames:
		return ru.redetectNames(ctx)
	case StageResolveProfiles:
		return ru.resolveProfiles(ctx)
	case StageMergeProfiles:
		return ru.mergeProfiles(ctx)
	case StageAdvanceChunk:
		return ru.advanceChunk()
	default:
		return "", fmt.Errorf("no handler for stage %q", stage)
	}
}

func (ru *run) gate(stage Stage, passed bool, score float64, reason string) Event {
	ru.state.Validation = append(ru.state.Validation, GateResult{
		Gate:   stage,
		Passed: passed,
		Score:  score,
		Reason: reason,
	})
	if passed {
		return EventPassed
	}
	return EventFailed
}

func (ru *run) languageCheck() (Event, error) {
	cfg := ru.r.cfg
	if cfg.SkipValidation {
		return ru.gate(StageLanguageCheck, true, 1, "skipped"), nil
	}
	script, ok := LookupScript(cfg.LanguageScript)
	if !ok {
		return "", fmt.Errorf("unknown script %q", cfg.LanguageScript)
	}
	ratio := ScriptRatio(ru.text, script)
	if ratio < cfg.MinScriptRatio {
		reason := fmt.Sprintf("%.0f%% of letters are %s, need %.0f%%", ratio*100, cfg.LanguageScript, cfg.MinScriptRatio*100)
		return ru.gate(StageLanguageCheck, false, ratio, reason), nil
	}
	return ru.gate(StageLanguageCheck, true, ratio, ""), nil
}

func (ru *run) samples() []string {
	cfg := ru.r.cfg
	return chunker.Sample(ru.text, cfg.ValidationSamples, cfg.SampleWords, ru.rng)
}

// gateUnavailable decides what a gate does when its model call failed.
// Only fatal failures end the run; anything else lets the document pass.
func (ru *run) gateUnavailable(stage Stage, err error) (Event, error) {
	if ai.KindOf(err) == ai.KindFatal {
		return "", err
	}
	logger.Warn("[Pipeline] Validation gate unavailable, letting document pass", "run_id", ru.state.RunID, "gate", stage, "err", err)
	return ru.gate(stage, true, 0, "unavailable: "+err.Error()), nil
}

func (ru *run) qualityAssess(ctx context.Context) (Event, error) {
	if ru.r.cfg.SkipValidation {
		return ru.gate(StageQualityAssess, true, 1, "skipped"), nil
	}
	samples := ru.samples()
	if len(samples) == 0 {
		return ru.gate(StageQualityAssess, false, 0, "document has no text"), nil
	}
	res, err := ru.r.deps.Quality.AssessQuality(ctx, samples)
	if err != nil {
		return ru.gateUnavailable(StageQualityAssess, err)
	}
	threshold := ru.r.cfg.QualityThreshold
	if res.Score < threshold {
		reason := fmt.Sprintf("quality score %.2f below %.2f", res.Score, threshold)
		if res.Reasoning != "" {
			reason += ": " + res.Reasoning
		}
		return ru.gate(StageQualityAssess, false, res.Score, reason), nil
	}
	return ru.gate(StageQualityAssess, true, res.Score, res.Level), nil
}

func (ru *run) classify(ctx context.Context) (Event, error) {
	if ru.r.cfg.SkipValidation {
		return ru.gate(StageClassify, true, 1, "skipped"), nil
	}
	res, err := ru.r.deps.Classifier.Classify(ctx, ru.samples())
	if err != nil {
		return ru.gateUnavailable(StageClassify, err)
	}
	if !res.IsLiterary {
		reason := fmt.Sprintf("classified as %s", res.Classification)
		return ru.gate(StageClassify, false, res.Confidence, reason), nil
	}
	return ru.gate(StageClassify, true, res.Confidence, res.Classification), nil
}

func (ru *run) chunk(ctx context.Context) (Event, error) {
	seq, err := chunker.Split(ru.text, ru.r.cfg.Chunk)
	if err != nil {
		return "", err
	}
	if err := ru.r.deps.Store.SaveChunks(ctx, ru.state.BookID, seq.All()); err != nil {
		return "", fmt.Errorf("save chunks: %w", err)
	}

	first, _ := seq.At(0)
	ru.seq = seq
	ru.text = ""
	ru.state.TotalChunks = seq.Len()
	ru.state.ChunkIndex = 0
	ru.state.PreviousChunkText = ""
	ru.state.CurrentChunkText = first.Text
	ru.limit = max(ru.r.cfg.MaxSteps, MaxTransitions(seq.Len()))

	logger.Info("[Pipeline] Document chunked", "run_id", ru.state.RunID, "chunks", seq.Len())
	ru.emit(ctx, ru.event(store.EventPreprocessingComplete))
	return EventDone, nil
}

func (ru *run) reportBlocked(ctx context.Context, stage Stage, repeated bool) {
	logger.Warn("[Pipeline] Content blocked", "run_id", ru.state.RunID, "stage", stage, "chunk", ru.state.ChunkIndex, "repeated", repeated)
	e := ru.event(store.EventContentBlocked)
	e.Data = map[string]any{"stage": string(stage), "repeated": repeated}
	ru.emit(ctx, e)
}

func (ru *run) detectNames(ctx context.Context) (Event, error) {
	ru.state.LastDetectedNames = nil
	ru.state.ResolvedCharacters = nil

	names, err := ru.r.deps.Names.ExtractNames(ctx, ru.state.DetectionWindow())
	if err != nil {
		switch {
		case errors.Is(err, ai.ErrContentBlocked):
			ru.reportBlocked(ctx, StageDetectNames, false)
			ru.skipReason = "name detection blocked"
			return EventContentBlocked, nil
		case ai.KindOf(err) == ai.KindFatal:
			return "", err
		}
		logger.Warn("[Pipeline] Name detection failed, treating as no names", "run_id", ru.state.RunID, "chunk", ru.state.ChunkIndex, "err", err)
		names = nil
	}

	ru.state.LastDetectedNames = cleanNames(names)
	if len(ru.state.LastDetectedNames) == 0 {
		logger.Debug("[Pipeline] No names in chunk", "run_id", ru.state.RunID, "chunk", ru.state.ChunkIndex)
		return EventNoNames, nil
	}
	return EventNamesFound, nil
}

func (ru *run) summarize(ctx context.Context) (Event, error) {
	summary, err := ru.r.deps.Summarizer.Summarize(ctx, ai.SummaryVars{
		PreviousSummary: ru.state.SummaryContext(),
		Chunk:           ru.state.CurrentChunkText,
		Names:           ru.state.LastDetectedNames,
	})
	if err != nil {
		switch {
		case errors.Is(err, ai.ErrContentBlocked):
			ru.state.ProhibitedContent = true
			ru.state.ChunkBlocked = true
			ru.reportBlocked(ctx, StageSummarize, false)
			return EventContentBlocked, nil
		case ai.KindOf(err) == ai.KindFatal:
			return "", err
		}
		logger.Warn("[Pipeline] Summarization failed", "run_id", ru.state.RunID, "chunk", ru.state.ChunkIndex, "err", err)
		ru.skipReason = "summary unavailable"
		return EventSummaryFailed, nil
	}
	if summary == "" {
		ru.skipReason = "summary empty"
		return EventSummaryFailed, nil
	}
	ru.state.RollingSummary = summary
	return EventSummarized, nil
}

func (ru *run) redetectNames(ctx context.Context) (Event, error) {
	names, err := ru.r.deps.Names.ExtractNames(ctx, ru.state.RollingSummary)
	if err != nil {
		if ai.KindOf(err) == ai.KindFatal {
			return "", err
		}
		logger.Debug("[Pipeline] Second name pass failed, keeping first pass", "run_id", ru.state.RunID, "err", err)
		return EventDone, nil
	}
	ru.state.LastDetectedNames = cleanNames(append(ru.state.LastDetectedNames, names...))
	return EventDone, nil
}

// existingProfiles looks up the stored profiles of the detected names.
func (ru *run) existingProfiles(ctx context.Context, names []string) ([]character.Profile, error) {
	seen := make(map[string]struct{}, len(names))
	var out []character.Profile
	for _, n := range names {
		ch, err := ru.r.deps.Store.FindByName(ctx, ru.state.BookID, n)
		if err != nil {
			return nil, fmt.Errorf("find %q: %w", n, err)
		}
		if ch == nil {
			continue
		}
		if _, ok := seen[ch.ID]; ok {
			continue
		}
		seen[ch.ID] = struct{}{}
		out = append(out, ch.Profile)
	}
	return out, nil
}

// degradable reports whether a failure of the embedding service only costs
// the current update.
func degradable(err error) bool {
	var ese *ai.ExternalServiceError
	return errors.As(err, &ese) && ese.Kind != ai.KindFatal
}

// withCharacter replaces the entry of ch in known, appending it when missing.
func withCharacter(known []character.Character, ch character.Character) []character.Character {
	for i := range known {
		if known[i].ID == ch.ID {
			known[i] = ch
			return known
		}
	}
	return append(known, ch)
}

func (ru *run) resolveProfiles(ctx context.Context) (Event, error) {
	bookID := ru.state.BookID
	names := ru.state.LastDetectedNames
	ru.pending = nil
	clear(ru.latest)

	existing, err := ru.existingProfiles(ctx, names)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(existing)
	if err != nil {
		return "", fmt.Errorf("encode profiles: %w", err)
	}

	summary := ru.state.RollingSummary
	if summary == "" {
		summary = ru.state.CurrentChunkText
	}
	updates, err := ru.r.deps.Profiles.ProfileDiff(ctx, ai.ProfileDiffVars{
		Summary:  summary,
		Names:    names,
		Existing: string(encoded),
	})
	if err != nil {
		switch {
		case errors.Is(err, ai.ErrContentBlocked):
			ru.reportBlocked(ctx, StageResolveProfiles, ru.state.ChunkBlocked)
			ru.skipReason = "profile updates blocked"
			return EventContentBlocked, nil
		case ai.KindOf(err) == ai.KindFatal:
			return "", err
		}
		logger.Warn("[Pipeline] Profile updates unavailable", "run_id", ru.state.RunID, "chunk", ru.state.ChunkIndex, "err", err)
		return EventSkipped, nil
	}

	known, err := ru.r.deps.Store.List(ctx, bookID)
	if err != nil {
		return "", fmt.Errorf("list characters: %w", err)
	}

	ids := make([]string, 0, len(updates))
	for _, u := range updates {
		if err := character.ValidateUpdate(u); err != nil {
			logger.Warn("[Pipeline] Skipping profile update", "run_id", ru.state.RunID, "chunk", ru.state.ChunkIndex, "err", err)
			continue
		}

		ch, res, created, err := ru.resolver.ResolveOrCreate(ctx, bookID, u, known)
		if err != nil {
			if degradable(err) {
				logger.Warn("[Pipeline] Could not resolve character, skipping update", "run_id", ru.state.RunID, "name", u.Name, "err", err)
				continue
			}
			return "", err
		}
		cur, ok := ru.latest[ch.ID]
		if !ok {
			cur = ch
		}
		merged, err := character.Merge(cur.Profile, u, u.Name)
		if err != nil {
			logger.Warn("[Pipeline] Skipping profile merge", "run_id", ru.state.RunID, "character_id", ch.ID, "err", err)
			if created {
				known = append(known, ch)
			}
			continue
		}
		cur.Profile = merged
		if _, ok := ru.latest[ch.ID]; !ok {
			ru.pending = append(ru.pending, ch.ID)
		}
		ru.latest[ch.ID] = cur
		// Later updates of the chunk resolve against the merged profile.
		known = withCharacter(known, cur)

		ru.state.ResolvedCharacters = append(ru.state.ResolvedCharacters, ResolvedCharacter{
			Name:        u.Name,
			CharacterID: ch.ID,
			Created:     created,
			Method:      res.Method,
			Similarity:  res.Similarity,
		})
		ids = append(ids, ch.ID)
	}

	if len(ids) > 0 {
		if err := ru.r.deps.Store.RecordMentions(ctx, bookID, ru.state.ChunkIndex, ids); err != nil {
			return "", fmt.Errorf("record mentions: %w", err)
		}
	}
	return EventDone, nil
}

func (ru *run) mergeProfiles(ctx context.Context) (Event, error) {
	bookID := ru.state.BookID
	touched := make([]string, 0, len(ru.pending))

	for _, id := range ru.pending {
		cur := ru.latest[id]
		ok, err := ru.r.deps.Store.UpdateProfile(ctx, id, cur.Profile)
		if err != nil {
			return "", fmt.Errorf("update profile %s: %w", id, err)
		}
		if !ok {
			logger.Warn("[Pipeline] Character disappeared before update", "run_id", ru.state.RunID, "character_id", id)
			continue
		}
		ru.cache.Invalidate(bookID, id)
		touched = append(touched, id)
	}
	ru.pending = nil

	for _, id := range touched {
		ch := ru.latest[id]
		if len(ch.Profile.Relations) == 0 {
			continue
		}
		report, err := ru.extractor.Extract(ctx, bookID, ch)
		if err != nil {
			return "", err
		}
		logger.Debug("[Pipeline] Relationships extracted", "run_id", ru.state.RunID, "character", ch.Profile.Name, "created", report.Created, "updated", report.Updated, "unresolved", len(report.Unresolved))
	}

	ru.state.CharactersTouched += len(touched)
	return EventDone, nil
}

func (ru *run) advanceChunk() (Event, error) {
	s := ru.state
	ru.completed = s.ChunkIndex
	s.ChunkBlocked = false
	s.ProhibitedContent = false

	if s.ChunkIndex+1 >= s.TotalChunks {
		s.NoMoreChunks = true
		return EventNoMoreChunks, nil
	}
	next, ok := ru.seq.At(s.ChunkIndex + 1)
	if !ok {
		return "", fmt.Errorf("chunk %d missing from sequence", s.ChunkIndex+1)
	}
	s.PreviousChunkText = s.CurrentChunkText
	s.CurrentChunkText = next.Text
	s.ChunkIndex = next.Index
	return EventMoreChunks, nil
}
