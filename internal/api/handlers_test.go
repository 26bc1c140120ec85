// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/shelfwise/shelfwise/internal/feed"
	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/recerr"
	"github.com/shelfwise/shelfwise/internal/recommend"
	"github.com/shelfwise/shelfwise/internal/tracking"
	"github.com/shelfwise/shelfwise/internal/trainer"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

type fakeTracking struct {
	impression *models.Impression
	feedback   *models.FeedbackEvent
	err        error

	lastImpression *tracking.ImpressionRequest
	lastFeedback   *tracking.FeedbackRequest
}

func (f *fakeTracking) LogImpression(_ context.Context, req *tracking.ImpressionRequest) (*models.Impression, error) {
	f.lastImpression = req
	if f.err != nil {
		return nil, f.err
	}
	return f.impression, nil
}

func (f *fakeTracking) LogFeedback(_ context.Context, req *tracking.FeedbackRequest) (*models.FeedbackEvent, error) {
	f.lastFeedback = req
	if f.err != nil {
		return nil, f.err
	}
	return f.feedback, nil
}

type mergeCall struct {
	from, to string
}

type fakeRecommend struct {
	serve    *recommend.ServeResult
	snapshot *models.RecommendationSnapshot
	merge    *models.MergeResult
	trending []models.TrendingItem
	counts   []recommend.CategoryCount
	err      error

	servedKeys []string
	merges     []mergeCall
}

func (f *fakeRecommend) Serve(_ context.Context, key string) (*recommend.ServeResult, error) {
	f.servedKeys = append(f.servedKeys, key)
	if f.err != nil {
		return nil, f.err
	}
	if f.serve != nil {
		return f.serve, nil
	}
	return &recommend.ServeResult{Key: key, Source: recommend.SourceSnapshot}, nil
}

func (f *fakeRecommend) CurrentSnapshot(_ context.Context, key string) (*models.RecommendationSnapshot, error) {
	return f.snapshot, f.err
}

func (f *fakeRecommend) MergeProfiles(_ context.Context, fromKey, toKey string) (*models.MergeResult, error) {
	f.merges = append(f.merges, mergeCall{from: fromKey, to: toKey})
	if f.err != nil {
		return nil, f.err
	}
	if f.merge != nil {
		return f.merge, nil
	}
	return &models.MergeResult{FromKey: fromKey, ToKey: toKey}, nil
}

func (f *fakeRecommend) Trending(_ context.Context) ([]models.TrendingItem, error) {
	return f.trending, f.err
}

func (f *fakeRecommend) Categories(_ context.Context, key string, limit int) ([]recommend.CategoryCount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.counts, nil
}

type fakeTrainer struct {
	result *trainer.Result
	err    error

	lastOpts trainer.Options
}

func (f *fakeTrainer) Train(_ context.Context, opts trainer.Options) (*trainer.Result, error) {
	f.lastOpts = opts
	return f.result, f.err
}

type fakeWaiter struct {
	result *feed.PollResult
	err    error

	lastKey   string
	lastSince time.Time
}

func (f *fakeWaiter) Wait(_ context.Context, key string, since time.Time) (*feed.PollResult, error) {
	f.lastKey = key
	f.lastSince = since
	return f.result, f.err
}

func newTestHandler() (*Handler, *fakeTracking, *fakeRecommend, *fakeTrainer, *fakeWaiter) {
	trk := &fakeTracking{
		impression: &models.Impression{ImpressionID: "imp-1", Ref: "ref-1"},
	}
	rec := &fakeRecommend{}
	trn := &fakeTrainer{result: &trainer.Result{Applied: 2}}
	wt := &fakeWaiter{result: &feed.PollResult{}}
	return NewHandler(trk, rec, trn, wt, ""), trk, rec, trn, wt
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rec.Body.String())
	}
	return resp
}

func TestImpressionCreated(t *testing.T) {
	t.Parallel()

	h, trk, _, _, _ := newTestHandler()

	body := `{"impression_id":"imp-1","session_id":"sess-1","model_version":"v3",
		"items":[{"item_id":42,"rank":1}]}`
	req := httptest.NewRequest("POST", "/events/impression", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Impression(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Error("Success = false, want true")
	}
	if trk.lastImpression == nil || trk.lastImpression.ImpressionID != "imp-1" {
		t.Errorf("service saw request %+v", trk.lastImpression)
	}
}

func TestImpressionDuplicateConflict(t *testing.T) {
	t.Parallel()

	h, trk, _, _, _ := newTestHandler()
	trk.err = recerr.New(recerr.KindConflict, "impression imp-1 already logged")

	body := `{"impression_id":"imp-1","session_id":"sess-1","model_version":"v3","items":[{"item_id":1}]}`
	req := httptest.NewRequest("POST", "/events/impression", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Impression(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeConflict {
		t.Errorf("error = %+v, want code CONFLICT", resp.Error)
	}
}

func TestImpressionValidationError(t *testing.T) {
	t.Parallel()

	h, trk, _, _, _ := newTestHandler()
	trk.err = recerr.New(recerr.KindValidation, "session_id is required")

	req := httptest.NewRequest("POST", "/events/impression", strings.NewReader(`{"impression_id":"x"}`))
	rec := httptest.NewRecorder()

	h.Impression(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v, want code VALIDATION_FAILED", resp.Error)
	}
}

func TestImpressionMalformedJSON(t *testing.T) {
	t.Parallel()

	h, _, _, _, _ := newTestHandler()

	req := httptest.NewRequest("POST", "/events/impression", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()

	h.Impression(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFeedbackNoContent(t *testing.T) {
	t.Parallel()

	h, trk, _, _, _ := newTestHandler()
	trk.feedback = &models.FeedbackEvent{ID: "fb-1"}

	body := `{"impression_id":"imp-1","session_id":"sess-1","item_id":42,"event_type":"purchase"}`
	req := httptest.NewRequest("POST", "/events/feedback", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Feedback(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 (body %s)", rec.Code, rec.Body.String())
	}
	if trk.lastFeedback == nil || trk.lastFeedback.ItemID != 42 {
		t.Errorf("service saw request %+v", trk.lastFeedback)
	}
}

func TestFeedbackUnknownImpression(t *testing.T) {
	t.Parallel()

	h, trk, _, _, _ := newTestHandler()
	trk.err = recerr.New(recerr.KindNotFound, "impression missing not found")

	body := `{"impression_id":"missing","session_id":"sess-1","item_id":42,"event_type":"like"}`
	req := httptest.NewRequest("POST", "/events/feedback", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Feedback(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRecommendationsRequiresIdentity(t *testing.T) {
	t.Parallel()

	h, _, _, _, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	h.Recommendations(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRecommendationsServesSessionKey(t *testing.T) {
	t.Parallel()

	h, _, svc, _, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/?sessionId=sess-1", nil)
	rec := httptest.NewRecorder()

	h.Recommendations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.merges) != 0 {
		t.Errorf("merges = %v, want none for session-only identity", svc.merges)
	}
	if len(svc.servedKeys) != 1 || svc.servedKeys[0] != "sess-1" {
		t.Errorf("servedKeys = %v, want [sess-1]", svc.servedKeys)
	}
}

func TestRecommendationsMergeOnIdentify(t *testing.T) {
	t.Parallel()

	h, _, svc, _, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/?sessionId=sess-1&userId=7", nil)
	rec := httptest.NewRecorder()

	h.Recommendations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.merges) != 1 || svc.merges[0] != (mergeCall{from: "sess-1", to: "user:7"}) {
		t.Errorf("merges = %v, want session folded into user:7", svc.merges)
	}
	if len(svc.servedKeys) != 1 || svc.servedKeys[0] != "user:7" {
		t.Errorf("servedKeys = %v, want [user:7]", svc.servedKeys)
	}
}

func TestRecommendationsServesDespiteMergeFailure(t *testing.T) {
	t.Parallel()

	h, _, _, _, _ := newTestHandler()
	failing := &fakeRecommend{}
	h.recommend = &mergeFailingRecommend{inner: failing}

	req := httptest.NewRequest("GET", "/?sessionId=sess-1&userId=7", nil)
	rec := httptest.NewRecorder()

	h.Recommendations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite merge failure", rec.Code)
	}
	if len(failing.servedKeys) != 1 || failing.servedKeys[0] != "user:7" {
		t.Errorf("servedKeys = %v, want [user:7]", failing.servedKeys)
	}
}

// mergeFailingRecommend fails merges but serves normally.
type mergeFailingRecommend struct {
	inner *fakeRecommend
}

func (m *mergeFailingRecommend) Serve(ctx context.Context, key string) (*recommend.ServeResult, error) {
	return m.inner.Serve(ctx, key)
}

func (m *mergeFailingRecommend) CurrentSnapshot(ctx context.Context, key string) (*models.RecommendationSnapshot, error) {
	return m.inner.CurrentSnapshot(ctx, key)
}

func (m *mergeFailingRecommend) MergeProfiles(_ context.Context, _, _ string) (*models.MergeResult, error) {
	return nil, recerr.New(recerr.KindInternal, "merge broke")
}

func (m *mergeFailingRecommend) Trending(ctx context.Context) ([]models.TrendingItem, error) {
	return m.inner.Trending(ctx)
}

func (m *mergeFailingRecommend) Categories(ctx context.Context, key string, limit int) ([]recommend.CategoryCount, error) {
	return m.inner.Categories(ctx, key, limit)
}

func TestMergeByKeys(t *testing.T) {
	t.Parallel()

	h, _, svc, _, _ := newTestHandler()

	body := `{"from_key":"sess-1","to_key":"user:7"}`
	req := httptest.NewRequest("POST", "/merge", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Merge(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.merges) != 1 || svc.merges[0] != (mergeCall{from: "sess-1", to: "user:7"}) {
		t.Errorf("merges = %v", svc.merges)
	}
}

func TestMergeByIdentities(t *testing.T) {
	t.Parallel()

	h, _, svc, _, _ := newTestHandler()

	body := `{"session_id":"sess-1","user_id":"7"}`
	req := httptest.NewRequest("POST", "/merge", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Merge(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.merges) != 1 || svc.merges[0] != (mergeCall{from: "sess-1", to: "user:7"}) {
		t.Errorf("merges = %v, want user_id mapped to user:7", svc.merges)
	}
}

func TestMergeMissingKeys(t *testing.T) {
	t.Parallel()

	h, _, _, _, _ := newTestHandler()

	req := httptest.NewRequest("POST", "/merge", strings.NewReader(`{"from_key":"sess-1"}`))
	rec := httptest.NewRecorder()

	h.Merge(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPollPassesKeyAndSince(t *testing.T) {
	t.Parallel()

	h, _, _, _, wt := newTestHandler()
	wt.result = &feed.PollResult{TimedOut: true}

	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	req := httptest.NewRequest("GET", "/poll?sessionId=sess-1&since="+since.Format(time.RFC3339), nil)
	rec := httptest.NewRecorder()

	h.Poll(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if wt.lastKey != "sess-1" {
		t.Errorf("key = %q, want sess-1", wt.lastKey)
	}
	if !wt.lastSince.Equal(since) {
		t.Errorf("since = %v, want %v", wt.lastSince, since)
	}

	resp := decodeResponse(t, rec)
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var result feed.PollResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode poll result: %v", err)
	}
	if !result.TimedOut {
		t.Error("TimedOut = false, want true passed through")
	}
}

func TestPollRejectsBadSince(t *testing.T) {
	t.Parallel()

	h, _, _, _, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/poll?sessionId=sess-1&since=yesterday", nil)
	rec := httptest.NewRecorder()

	h.Poll(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPollRequiresIdentity(t *testing.T) {
	t.Parallel()

	h, _, _, _, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/poll", nil)
	rec := httptest.NewRecorder()

	h.Poll(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTrending(t *testing.T) {
	t.Parallel()

	h, _, svc, _, _ := newTestHandler()
	svc.trending = []models.TrendingItem{{ItemID: 9, Views: 3, Score: 3.4}}

	req := httptest.NewRequest("GET", "/trending", nil)
	rec := httptest.NewRecorder()

	h.Trending(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Error("Success = false, want true")
	}
}

func TestCategoriesRejectsBadLimit(t *testing.T) {
	t.Parallel()

	h, _, _, _, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/categories?sessionId=sess-1&limit=-3", nil)
	rec := httptest.NewRecorder()

	h.Categories(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTrainReturnsResult(t *testing.T) {
	t.Parallel()

	h, _, _, trn, _ := newTestHandler()

	req := httptest.NewRequest("POST", "/admin/train", strings.NewReader(`{"dry_run":true}`))
	rec := httptest.NewRecorder()

	h.Train(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if !trn.lastOpts.DryRun {
		t.Error("DryRun = false, want true")
	}
}

func TestTrainPassesPerRunOptions(t *testing.T) {
	t.Parallel()

	h, _, _, trn, _ := newTestHandler()

	body := `{"history_days":30,"min_score":1.5,"top_k":5,"max_profiles":100}`
	req := httptest.NewRequest("POST", "/admin/train", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Train(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	opts := trn.lastOpts
	if opts.HistoryDays != 30 || opts.TopK != 5 || opts.MaxProfiles != 100 {
		t.Errorf("options = %+v, want history 30, topK 5, maxProfiles 100", opts)
	}
	if opts.MinScore == nil || *opts.MinScore != 1.5 {
		t.Errorf("MinScore = %v, want 1.5", opts.MinScore)
	}
	if opts.DryRun {
		t.Error("DryRun = true, want false when omitted")
	}
}

func TestTrainRejectsNegativeOptions(t *testing.T) {
	t.Parallel()

	h, _, _, trn, _ := newTestHandler()
	trn.lastOpts = trainer.Options{}

	req := httptest.NewRequest("POST", "/admin/train", strings.NewReader(`{"top_k":-1}`))
	rec := httptest.NewRecorder()

	h.Train(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTrainUpstreamFailure(t *testing.T) {
	t.Parallel()

	h, _, _, trn, _ := newTestHandler()
	trn.result = nil
	trn.err = recerr.New(recerr.KindUpstream, "trainer exited 1: model diverged")

	req := httptest.NewRequest("POST", "/admin/train", nil)
	rec := httptest.NewRecorder()

	h.Train(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeUpstreamFailed {
		t.Errorf("error = %+v, want UPSTREAM_FAILED", resp.Error)
	}
}

func TestTrainWithoutRunner(t *testing.T) {
	t.Parallel()

	h, _, _, _, _ := newTestHandler()
	h.trainer = nil

	req := httptest.NewRequest("POST", "/admin/train", nil)
	rec := httptest.NewRecorder()

	h.Train(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h, _, _, _, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Error("Success = false, want true")
	}
}
