package autofill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Angabebr/elc-autofill/dom"
	"github.com/Angabebr/elc-autofill/entries"
)

var scenario = []entries.Entry{
	{ID: "06pyk", Label: "ELC1"},
	{ID: "06cdp", Label: "ELC3"},
	{ID: "066om", Label: "ELC2"},
}

// eventLog counts bubbling events observed at the document root.
type eventLog struct {
	clicks  map[string]int
	changes map[string]int
}

func newDocument(t *testing.T) (*dom.Memory, *eventLog) {
	t.Helper()
	doc := dom.NewMemory()
	ev := &eventLog{clicks: map[string]int{}, changes: map[string]int{}}
	doc.Root().On(dom.EventClick, func(e dom.Event) { ev.clicks[e.Target.ID]++ })
	doc.Root().On(dom.EventChange, func(e dom.Event) { ev.changes[e.Target.ID]++ })
	return doc, ev
}

func scenarioDocument(t *testing.T) (*dom.Memory, *eventLog) {
	t.Helper()
	doc, ev := newDocument(t)
	labels := map[string]string{"06pyk": "v1", "06cdp": "v3", "066om": "v2"}
	for _, e := range scenario {
		row := doc.Add("row_"+e.ID, nil)
		doc.Add("td_"+e.ID, row)
		doc.AddSelect("con__"+e.ID, row,
			dom.Option{Label: "-- pick --", Value: ""},
			dom.Option{Label: "  " + e.Label + " ", Value: labels[e.ID]},
			dom.Option{Label: "Other", Value: "other"},
		)
	}
	return doc, ev
}

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func warnings(logs *observer.ObservedLogs) []observer.LoggedEntry {
	return logs.FilterLevelExact(zapcore.WarnLevel).All()
}

func TestRunScenarioAllPresent(t *testing.T) {
	doc, ev := scenarioDocument(t)
	logger, logs := newObservedLogger()

	report, err := New(doc, logger).Run(context.Background(), scenario)
	require.NoError(t, err)

	for id, want := range map[string]string{"06pyk": "v1", "06cdp": "v3", "066om": "v2"} {
		n, ok := doc.Node("con__" + id)
		require.True(t, ok)
		assert.Equal(t, want, n.Value(), id)
		assert.Equal(t, 1, ev.clicks["td_"+id], id)
		assert.Equal(t, 1, ev.changes["con__"+id], id)
	}

	assert.Empty(t, warnings(logs))
	assert.Equal(t, 3, logs.FilterMessage("selected").Len())
	assert.Equal(t, 3, logs.FilterMessage("clicked").Len())
	assert.Equal(t, 3, report.Succeeded())
	assert.Zero(t, report.Warnings())
	assert.NoError(t, report.Err())
	assert.Equal(t, "v3", report.Outcomes[1].SelectedValue)
}

func TestRunOptionNotMatched(t *testing.T) {
	doc, ev := scenarioDocument(t)
	doc.AddSelect("con__06cdp", nil,
		dom.Option{Label: "ELC1", Value: "a"},
		dom.Option{Label: "elc3", Value: "b"},
		dom.Option{Label: "ELC33", Value: "c"},
	)
	ctl, _ := doc.Node("con__06cdp")
	ctl.SetValue("c")

	logger, logs := newObservedLogger()
	report, err := New(doc, logger).Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, "c", ctl.Value())
	assert.Zero(t, ev.changes["con__06cdp"])

	warns := warnings(logs)
	require.Len(t, warns, 1)
	fields := warns[0].ContextMap()
	assert.Equal(t, "con__06cdp", fields["key"])
	assert.Equal(t, "ELC3", fields["label"])

	assert.Equal(t, 2, report.Succeeded())
	assert.ErrorIs(t, report.Outcomes[1].SelectErr, ErrOptionNotMatched)
	assert.True(t, report.Outcomes[1].Clicked)

	for _, id := range []string{"06pyk", "066om"} {
		assert.Equal(t, 1, ev.changes["con__"+id], id)
	}
}

func TestRunMissingClickTargetStillSelects(t *testing.T) {
	doc, ev := newDocument(t)
	doc.AddSelect("con__x", nil,
		dom.Option{Label: "A", Value: "a"},
		dom.Option{Label: "B", Value: "b"},
	)

	logger, logs := newObservedLogger()
	report, err := New(doc, logger).Run(context.Background(), []entries.Entry{{ID: "x", Label: "B"}})
	require.NoError(t, err)

	ctl, _ := doc.Node("con__x")
	assert.Equal(t, "b", ctl.Value())
	assert.Equal(t, 1, ev.changes["con__x"])

	warns := warnings(logs)
	require.Len(t, warns, 1)
	assert.Equal(t, "td_x", warns[0].ContextMap()["key"])

	out := report.Outcomes[0]
	assert.ErrorIs(t, out.ClickErr, ErrClickTargetMissing)
	assert.ErrorIs(t, out.ClickErr, dom.ErrNotFound)
	assert.True(t, out.Selected)
}

func TestRunMissingSelectTarget(t *testing.T) {
	doc, ev := newDocument(t)
	doc.Add("td_x", nil)
	doc.Add("con__y", nil)

	logger, logs := newObservedLogger()
	report, err := New(doc, logger).Run(context.Background(), []entries.Entry{
		{ID: "x", Label: "A"},
		{ID: "y", Label: "A"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, ev.clicks["td_x"])
	assert.Empty(t, ev.changes)
	assert.Len(t, warnings(logs), 3)

	assert.ErrorIs(t, report.Outcomes[0].SelectErr, ErrSelectTargetMissing)
	assert.ErrorIs(t, report.Outcomes[1].SelectErr, dom.ErrNotSelectable)
	assert.Equal(t, 3, report.Warnings())
	assert.Zero(t, report.Succeeded())

	joined := report.Err()
	assert.ErrorIs(t, joined, ErrClickTargetMissing)
	assert.ErrorIs(t, joined, ErrSelectTargetMissing)
}

func TestRunFirstMatchWins(t *testing.T) {
	doc, _ := newDocument(t)
	doc.AddSelect("con__x", nil,
		dom.Option{Label: "Dup", Value: "first"},
		dom.Option{Label: " Dup", Value: "second"},
	)

	_, err := New(doc, nil).Run(context.Background(), []entries.Entry{{ID: "x", Label: "Dup "}})
	require.NoError(t, err)

	ctl, _ := doc.Node("con__x")
	assert.Equal(t, "first", ctl.Value())
}

func TestRunClickRevealsControl(t *testing.T) {
	doc, _ := newDocument(t)
	cell := doc.Add("td_x", nil)
	cell.On(dom.EventClick, func(dom.Event) {
		doc.AddSelect("con__x", cell, dom.Option{Label: "ELC1", Value: "v1"})
	})

	report, err := New(doc, nil).Run(context.Background(), []entries.Entry{{ID: "x", Label: "ELC1"}})
	require.NoError(t, err)
	assert.True(t, report.Outcomes[0].OK())
	assert.Equal(t, "v1", report.Outcomes[0].SelectedValue)
}

// recorder wraps a resolver and logs every call in order.
type recorder struct {
	dom.Resolver
	calls []string
}

type recClickable struct {
	dom.Clickable
	r   *recorder
	key string
}

func (c recClickable) Click(ctx context.Context) error {
	c.r.calls = append(c.r.calls, "click:"+c.key)
	return c.Clickable.Click(ctx)
}

func (r *recorder) Clickable(ctx context.Context, key string) (dom.Clickable, error) {
	r.calls = append(r.calls, "lookup:"+key)
	c, err := r.Resolver.Clickable(ctx, key)
	if err != nil {
		return nil, err
	}
	return recClickable{Clickable: c, r: r, key: key}, nil
}

func (r *recorder) Selectable(ctx context.Context, key string) (dom.Selectable, error) {
	r.calls = append(r.calls, "lookup:"+key)
	return r.Resolver.Selectable(ctx, key)
}

func TestRunOrdering(t *testing.T) {
	doc, _ := scenarioDocument(t)
	rec := &recorder{Resolver: doc}

	_, err := New(rec, nil).Run(context.Background(), scenario[:2])
	require.NoError(t, err)

	assert.Equal(t, []string{
		"lookup:td_06pyk", "click:td_06pyk", "lookup:con__06pyk",
		"lookup:td_06cdp", "click:td_06cdp", "lookup:con__06cdp",
	}, rec.calls)
}

func TestRunIdempotent(t *testing.T) {
	doc, _ := scenarioDocument(t)
	f := New(doc, nil)

	_, err := f.Run(context.Background(), scenario)
	require.NoError(t, err)
	first := map[string]string{}
	for _, e := range scenario {
		n, _ := doc.Node("con__" + e.ID)
		first[e.ID] = n.Value()
	}

	_, err = f.Run(context.Background(), scenario)
	require.NoError(t, err)
	for _, e := range scenario {
		n, _ := doc.Node("con__" + e.ID)
		assert.Equal(t, first[e.ID], n.Value(), e.ID)
	}
}

func TestRunCustomPrefixes(t *testing.T) {
	doc, _ := newDocument(t)
	doc.Add("cell-x", nil)
	doc.AddSelect("pick-x", nil, dom.Option{Label: "A", Value: "a"}, dom.Option{Label: "B", Value: "b"})

	report, err := New(doc, nil, WithClickPrefix("cell-"), WithSelectPrefix("pick-")).
		Run(context.Background(), []entries.Entry{{ID: "x", Label: "B"}})
	require.NoError(t, err)
	assert.True(t, report.Outcomes[0].OK())
}

func TestRunCancelled(t *testing.T) {
	doc, _ := scenarioDocument(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(doc, nil).Run(ctx, scenario)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Outcomes)
}

type fakeAdvisor struct {
	hint   string
	err    error
	labels []string
}

func (a *fakeAdvisor) SuggestLabel(_ context.Context, _ string, labels []string) (string, error) {
	a.labels = labels
	return a.hint, a.err
}

func TestRunAdvisorHint(t *testing.T) {
	doc, _ := newDocument(t)
	ctl := doc.AddSelect("con__x", nil, dom.Option{Label: " ELC 3 ", Value: "3"})
	adv := &fakeAdvisor{hint: "ELC 3"}
	logger, logs := newObservedLogger()

	_, err := New(doc, logger, WithAdvisor(adv)).Run(context.Background(), []entries.Entry{{ID: "x", Label: "ELC3"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"ELC 3"}, adv.labels)
	assert.Equal(t, "3", ctl.Value())

	warns := logs.FilterMessage("no matching option").All()
	require.Len(t, warns, 1)
	assert.Equal(t, "ELC 3", warns[0].ContextMap()["closest"])
}

func TestRunAdvisorErrorIsQuiet(t *testing.T) {
	doc, _ := newDocument(t)
	doc.AddSelect("con__x", nil, dom.Option{Label: "A", Value: "a"})
	logger, logs := newObservedLogger()

	_, err := New(doc, logger, WithAdvisor(&fakeAdvisor{err: errors.New("boom")})).
		Run(context.Background(), []entries.Entry{{ID: "x", Label: "B"}})
	require.NoError(t, err)

	warns := logs.FilterMessage("no matching option").All()
	require.Len(t, warns, 1)
	assert.NotContains(t, warns[0].ContextMap(), "closest")
}

// brokenResolver fails every lookup the way a detached page does.
type brokenResolver struct{ err error }

func (b brokenResolver) Clickable(context.Context, string) (dom.Clickable, error) {
	return nil, b.err
}

func (b brokenResolver) Selectable(context.Context, string) (dom.Selectable, error) {
	return nil, b.err
}

func TestRunLookupErrorIsNotMissingTarget(t *testing.T) {
	closed := errors.New("target closed")
	logger, logs := newObservedLogger()

	report, err := New(brokenResolver{err: closed}, logger).
		Run(context.Background(), []entries.Entry{{ID: "x", Label: "A"}})
	require.NoError(t, err)

	out := report.Outcomes[0]
	assert.ErrorIs(t, out.ClickErr, closed)
	assert.NotErrorIs(t, out.ClickErr, ErrClickTargetMissing)
	assert.ErrorIs(t, out.SelectErr, closed)
	assert.NotErrorIs(t, out.SelectErr, ErrSelectTargetMissing)

	assert.Equal(t, 2, logs.FilterMessage("lookup failed").Len())
	assert.Zero(t, logs.FilterMessage("click target not found").Len())
	assert.Zero(t, logs.FilterMessage("select target not found").Len())
}

func TestRunNotSelectableIsMissingTarget(t *testing.T) {
	doc, _ := newDocument(t)
	doc.Add("con__x", nil)

	report, err := New(doc, nil).Run(context.Background(), []entries.Entry{{ID: "x", Label: "A"}})
	require.NoError(t, err)
	assert.ErrorIs(t, report.Outcomes[0].SelectErr, ErrSelectTargetMissing)
	assert.ErrorIs(t, report.Outcomes[0].SelectErr, dom.ErrNotSelectable)
}

// stalledAdvisor never answers on its own.
type stalledAdvisor struct{}

func (stalledAdvisor) SuggestLabel(ctx context.Context, _ string, _ []string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRunAdvisorTimeout(t *testing.T) {
	doc, _ := newDocument(t)
	doc.AddSelect("con__x", nil, dom.Option{Label: "A", Value: "a"})
	logger, logs := newObservedLogger()

	f := New(doc, logger, WithAdvisor(stalledAdvisor{}), WithAdvisorTimeout(20*time.Millisecond))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.Run(context.Background(), []entries.Entry{{ID: "x", Label: "B"}})
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run blocked on the advisor")
	}

	warns := logs.FilterMessage("no matching option").All()
	require.Len(t, warns, 1)
	assert.NotContains(t, warns[0].ContextMap(), "closest")
}
