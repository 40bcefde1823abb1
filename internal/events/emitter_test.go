package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/fpmake/internal/eventstore"
)

type recordingEmitter struct {
	events []eventstore.Event
	err    error
}

func (r *recordingEmitter) Emit(_ context.Context, e eventstore.Event) error {
	r.events = append(r.events, e)
	return r.err
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func started(t *testing.T) eventstore.Event {
	t.Helper()
	e, err := eventstore.NewEvent("b1", eventstore.TypeBuildStarted, eventstore.BuildStarted{Trigger: "cli"})
	require.NoError(t, err)
	return e
}

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	failing := &recordingEmitter{err: stderrors.New("disk full")}
	ok := &recordingEmitter{}

	err := Fanout{failing, nil, ok}.Emit(t.Context(), started(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
}

func TestStoreEmitterAppends(t *testing.T) {
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, NewStoreEmitter(store).Emit(t.Context(), started(t)))

	events, err := store.ByBuildID(t.Context(), "b1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventstore.TypeBuildStarted, events[0].Type)
}

func TestNoopAndNilStore(t *testing.T) {
	assert.NoError(t, Noop{}.Emit(t.Context(), started(t)))
	assert.NoError(t, NewStoreEmitter(nil).Emit(t.Context(), started(t)))
}

func TestNATSPublisherSubjectAndPayload(t *testing.T) {
	fake := &fakePublisher{}
	p := newPublisher(fake, "")

	require.NoError(t, p.Emit(t.Context(), started(t)))
	require.Len(t, fake.subjects, 1)
	assert.Equal(t, "fpmake.builds.BuildStarted", fake.subjects[0])

	var decoded eventstore.Event
	require.NoError(t, json.Unmarshal(fake.payloads[0], &decoded))
	assert.Equal(t, "b1", decoded.BuildID)

	var payload eventstore.BuildStarted
	require.NoError(t, decoded.Decode(&payload))
	assert.Equal(t, "cli", payload.Trigger)

	assert.NoError(t, p.Close())
}
