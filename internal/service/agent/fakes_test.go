package agent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"atelier/internal/domain"
	agentModels "atelier/internal/domain/models/agent"
	"atelier/internal/domain/repositories"
)

// In-memory repository fakes. They mirror the persistence semantics the
// services rely on: positions assigned max+1, monotonic status transitions,
// URL-keyed reference dedup with blank-field guards.

type fakeTxManager struct{}

func (f *fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

type fakeContextRepo struct {
	nextID      int
	contexts    map[string]*agentModels.Context
	messages    []agentModels.Message
	generations []agentModels.Generation
}

func newFakeContextRepo() *fakeContextRepo {
	return &fakeContextRepo{contexts: make(map[string]*agentModels.Context)}
}

func (f *fakeContextRepo) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeContextRepo) CreateContext(ctx context.Context, c *agentModels.Context) error {
	c.ID = f.id("ctx")
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	stored := *c
	f.contexts[c.ID] = &stored
	return nil
}

func (f *fakeContextRepo) GetContext(ctx context.Context, contextID string) (*agentModels.Context, error) {
	c, ok := f.contexts[contextID]
	if !ok {
		return nil, fmt.Errorf("context %s: %w", contextID, domain.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (f *fakeContextRepo) ListContexts(ctx context.Context, agentName string, limit int) ([]agentModels.Context, error) {
	var out []agentModels.Context
	for _, c := range f.contexts {
		if agentName == "" || c.AgentName == agentName {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeContextRepo) UpdateStatus(ctx context.Context, contextID, status string) error {
	c, ok := f.contexts[contextID]
	if !ok {
		return fmt.Errorf("context %s: %w", contextID, domain.ErrNotFound)
	}
	for _, allowed := range agentModels.ContextStatusesBefore(status) {
		if c.Status == allowed {
			c.Status = status
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return &domain.TransitionError{Entity: "context", From: c.Status, To: status}
}

func (f *fakeContextRepo) DeleteContext(ctx context.Context, contextID string) error {
	if _, ok := f.contexts[contextID]; !ok {
		return fmt.Errorf("context %s: %w", contextID, domain.ErrNotFound)
	}
	delete(f.contexts, contextID)
	return nil
}

func (f *fakeContextRepo) CreateMessage(ctx context.Context, m *agentModels.Message) error {
	if _, ok := f.contexts[m.ContextID]; !ok {
		return fmt.Errorf("context %s: %w", m.ContextID, domain.ErrNotFound)
	}
	m.ID = f.id("msg")
	m.Position = 0
	for _, existing := range f.messages {
		if existing.ContextID == m.ContextID && existing.Position >= m.Position {
			m.Position = existing.Position + 1
		}
	}
	m.CreatedAt = time.Now()
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeContextRepo) ListMessages(ctx context.Context, contextID, role string) ([]agentModels.Message, error) {
	var out []agentModels.Message
	for _, m := range f.messages {
		if m.ContextID == contextID && (role == "" || m.Role == role) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeContextRepo) CreateGeneration(ctx context.Context, g *agentModels.Generation) error {
	if _, ok := f.contexts[g.ContextID]; !ok {
		return fmt.Errorf("context %s: %w", g.ContextID, domain.ErrNotFound)
	}
	g.ID = f.id("gen")
	g.CreatedAt = time.Now()
	f.generations = append(f.generations, *g)
	return nil
}

func (f *fakeContextRepo) LatestGeneration(ctx context.Context, contextID string) (*agentModels.Generation, error) {
	for i := len(f.generations) - 1; i >= 0; i-- {
		if f.generations[i].ContextID == contextID {
			out := f.generations[i]
			return &out, nil
		}
	}
	return nil, fmt.Errorf("generations for context %s: %w", contextID, domain.ErrNotFound)
}

type fakeToolCallRepo struct {
	nextID int
	calls  []*agentModels.ToolCall
}

func newFakeToolCallRepo() *fakeToolCallRepo {
	return &fakeToolCallRepo{}
}

func (f *fakeToolCallRepo) CreateToolCall(ctx context.Context, tc *agentModels.ToolCall) error {
	f.nextID++
	tc.ID = fmt.Sprintf("tc-%d", f.nextID)
	tc.Position = 0
	for _, existing := range f.calls {
		if existing.ContextID == tc.ContextID && existing.Position >= tc.Position {
			tc.Position = existing.Position + 1
		}
	}
	tc.CreatedAt = time.Now()
	tc.UpdatedAt = tc.CreatedAt
	stored := *tc
	f.calls = append(f.calls, &stored)
	return nil
}

func (f *fakeToolCallRepo) GetToolCall(ctx context.Context, toolCallID string) (*agentModels.ToolCall, error) {
	for _, tc := range f.calls {
		if tc.ID == toolCallID {
			out := *tc
			return &out, nil
		}
	}
	return nil, fmt.Errorf("tool call %s: %w", toolCallID, domain.ErrNotFound)
}

func (f *fakeToolCallRepo) ListToolCalls(ctx context.Context, contextID, name, status string) ([]agentModels.ToolCall, error) {
	var out []agentModels.ToolCall
	for _, tc := range f.calls {
		if tc.ContextID != contextID {
			continue
		}
		if name != "" && tc.Name != name {
			continue
		}
		if status != "" && tc.Status != status {
			continue
		}
		out = append(out, *tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeToolCallRepo) finish(toolCallID, status, errorMessage string, result map[string]any) (*agentModels.ToolCall, error) {
	for _, tc := range f.calls {
		if tc.ID != toolCallID {
			continue
		}
		now := time.Now()
		tc.Status = status
		tc.Result = result
		tc.ErrorMessage = errorMessage
		tc.CompletedAt = &now
		if tc.StartedAt != nil {
			ms := int(now.Sub(*tc.StartedAt).Milliseconds())
			tc.DurationMS = &ms
		}
		tc.UpdatedAt = now
		out := *tc
		return &out, nil
	}
	return nil, fmt.Errorf("tool call %s: %w", toolCallID, domain.ErrNotFound)
}

func (f *fakeToolCallRepo) CompleteToolCall(ctx context.Context, toolCallID string, result map[string]any) (*agentModels.ToolCall, error) {
	return f.finish(toolCallID, agentModels.ToolCallStatusCompleted, "", result)
}

func (f *fakeToolCallRepo) FailToolCall(ctx context.Context, toolCallID string, errorMessage string) (*agentModels.ToolCall, error) {
	return f.finish(toolCallID, agentModels.ToolCallStatusFailed, errorMessage, nil)
}

func (f *fakeToolCallRepo) Statistics(ctx context.Context, contextID string) (*agentModels.ToolCallStatistics, error) {
	stats := &agentModels.ToolCallStatistics{ByTool: make(map[string]int)}
	for _, tc := range f.calls {
		if tc.ContextID != contextID {
			continue
		}
		stats.Total++
		stats.ByTool[tc.Name]++
		switch tc.Status {
		case agentModels.ToolCallStatusCompleted:
			stats.Completed++
		case agentModels.ToolCallStatusFailed:
			stats.Failed++
		case agentModels.ToolCallStatusPending:
			stats.Pending++
		case agentModels.ToolCallStatusExecuting:
			stats.Executing++
		}
		if tc.DurationMS != nil {
			stats.TotalDurationMS += int64(*tc.DurationMS)
		}
	}
	return stats, nil
}

func (f *fakeToolCallRepo) FailStaleExecuting(ctx context.Context, cutoff time.Time) (int, error) {
	count := 0
	for _, tc := range f.calls {
		if tc.Status == agentModels.ToolCallStatusExecuting && tc.StartedAt != nil && tc.StartedAt.Before(cutoff) {
			tc.Status = agentModels.ToolCallStatusFailed
			tc.ErrorMessage = "tool call abandoned: still executing past timeout"
			count++
		}
	}
	return count, nil
}

type fakeReferenceRepo struct {
	nextID int
	refs   []*agentModels.Reference
}

func newFakeReferenceRepo() *fakeReferenceRepo {
	return &fakeReferenceRepo{}
}

func (f *fakeReferenceRepo) find(contextID, url string) *agentModels.Reference {
	for _, r := range f.refs {
		if r.ContextID == contextID && r.URL == url {
			return r
		}
	}
	return nil
}

func (f *fakeReferenceRepo) insert(ref *agentModels.Reference) {
	f.nextID++
	ref.ID = fmt.Sprintf("ref-%d", f.nextID)
	ref.Position = 0
	for _, existing := range f.refs {
		if existing.ContextID == ref.ContextID && existing.Position >= ref.Position {
			ref.Position = existing.Position + 1
		}
	}
	if ref.Domain == "" {
		ref.Domain = agentModels.DeriveDomain(ref.URL)
	}
	ref.CreatedAt = time.Now()
	ref.UpdatedAt = ref.CreatedAt
	stored := *ref
	f.refs = append(f.refs, &stored)
}

func (f *fakeReferenceRepo) UpsertReference(ctx context.Context, ref *agentModels.Reference) error {
	existing := f.find(ref.ContextID, ref.URL)
	if existing == nil {
		f.insert(ref)
		return nil
	}
	if ref.ToolCallRowID != nil {
		existing.ToolCallRowID = ref.ToolCallRowID
	}
	if ref.Title != "" {
		existing.Title = ref.Title
	}
	if ref.Description != "" {
		existing.Description = ref.Description
	}
	if ref.ExtractedContent != "" {
		existing.ExtractedContent = ref.ExtractedContent
	}
	existing.Status = ref.Status
	existing.UpdatedAt = time.Now()
	*ref = *existing
	return nil
}

func (f *fakeReferenceRepo) CreateReferenceIfAbsent(ctx context.Context, ref *agentModels.Reference) (bool, error) {
	if f.find(ref.ContextID, ref.URL) != nil {
		return false, nil
	}
	f.insert(ref)
	return true, nil
}

func (f *fakeReferenceRepo) GetReference(ctx context.Context, referenceID string) (*agentModels.Reference, error) {
	for _, r := range f.refs {
		if r.ID == referenceID {
			out := *r
			return &out, nil
		}
	}
	return nil, fmt.Errorf("reference %s: %w", referenceID, domain.ErrNotFound)
}

func (f *fakeReferenceRepo) GetReferenceByURL(ctx context.Context, contextID, url string) (*agentModels.Reference, error) {
	if r := f.find(contextID, url); r != nil {
		out := *r
		return &out, nil
	}
	return nil, fmt.Errorf("reference for %s: %w", url, domain.ErrNotFound)
}

func (f *fakeReferenceRepo) ListReferences(ctx context.Context, contextID, status string) ([]agentModels.Reference, error) {
	var out []agentModels.Reference
	for _, r := range f.refs {
		if r.ContextID == contextID && (status == "" || r.Status == status) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeReferenceRepo) EnrichExtractedContent(ctx context.Context, contextID, url, content, title string) error {
	existing := f.find(contextID, url)
	if existing == nil {
		return fmt.Errorf("reference for %s: %w", url, domain.ErrNotFound)
	}
	existing.ExtractedContent = content
	if existing.Title == "" && title != "" {
		existing.Title = title
	}
	existing.UpdatedAt = time.Now()
	return nil
}

func (f *fakeReferenceRepo) UpdateFetchedMetadata(ctx context.Context, ref *agentModels.Reference) error {
	for _, r := range f.refs {
		if r.ID == ref.ID {
			*r = *ref
			r.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("reference %s: %w", ref.ID, domain.ErrNotFound)
}

func (f *fakeReferenceRepo) UpdateStatus(ctx context.Context, referenceID, status, errorMessage string) error {
	for _, r := range f.refs {
		if r.ID == referenceID {
			r.Status = status
			r.ErrorMessage = errorMessage
			r.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("reference %s: %w", referenceID, domain.ErrNotFound)
}

type fakeFragmentRepo struct {
	nextID    int
	fragments []*agentModels.Fragment
}

func newFakeFragmentRepo() *fakeFragmentRepo {
	return &fakeFragmentRepo{}
}

func (f *fakeFragmentRepo) CreateFragment(ctx context.Context, frag *agentModels.Fragment) error {
	f.nextID++
	frag.ID = fmt.Sprintf("frag-%d", f.nextID)
	frag.CreatedAt = time.Now()
	frag.UpdatedAt = frag.CreatedAt
	stored := *frag
	f.fragments = append(f.fragments, &stored)
	return nil
}

func (f *fakeFragmentRepo) GetFragment(ctx context.Context, fragmentID string) (*agentModels.Fragment, error) {
	for _, frag := range f.fragments {
		if frag.ID == fragmentID {
			out := *frag
			return &out, nil
		}
	}
	return nil, fmt.Errorf("fragment %s: %w", fragmentID, domain.ErrNotFound)
}

func (f *fakeFragmentRepo) ListFragments(ctx context.Context, contextID, status string) ([]agentModels.Fragment, error) {
	var out []agentModels.Fragment
	for _, frag := range f.fragments {
		if frag.ContextID == contextID && (status == "" || frag.Status == status) {
			out = append(out, *frag)
		}
	}
	return out, nil
}

func (f *fakeFragmentRepo) UpdateStatus(ctx context.Context, fragmentID, status string, content *string) error {
	for _, frag := range f.fragments {
		if frag.ID != fragmentID {
			continue
		}
		allowed := false
		for _, from := range agentModels.FragmentStatusesBefore(status) {
			if frag.Status == from {
				allowed = true
			}
		}
		if !allowed {
			if frag.Status == status {
				return nil
			}
			return &domain.TransitionError{Entity: "fragment", From: frag.Status, To: status}
		}
		switch status {
		case agentModels.FragmentStatusGenerated:
			if content != nil {
				frag.GeneratedContent = content
			}
		case agentModels.FragmentStatusApplied:
			if content != nil {
				frag.AppliedContent = content
			} else {
				frag.AppliedContent = frag.GeneratedContent
			}
		}
		frag.Status = status
		frag.UpdatedAt = time.Now()
		return nil
	}
	return fmt.Errorf("fragment %s: %w", fragmentID, domain.ErrNotFound)
}

func (f *fakeFragmentRepo) VersionHistory(ctx context.Context, fragmentID string) ([]agentModels.Fragment, error) {
	current, err := f.GetFragment(ctx, fragmentID)
	if err != nil {
		return nil, err
	}
	chain := []agentModels.Fragment{*current}
	for current.ParentID != nil {
		parent, err := f.GetFragment(ctx, *current.ParentID)
		if err != nil {
			break
		}
		chain = append([]agentModels.Fragment{*parent}, chain...)
		current = parent
	}
	return chain, nil
}
