package notifier_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/events"
	"github.com/UnknownOlympus/custodian/internal/i18n"
	"github.com/UnknownOlympus/custodian/internal/metrics"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/UnknownOlympus/custodian/internal/notifier"
	"github.com/UnknownOlympus/custodian/internal/repository/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v4"
)

type sent struct {
	to   string
	what string
}

type fakeSender struct {
	messages []sent
	err      error
}

func (f *fakeSender) Send(to telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	text, _ := what.(string)
	f.messages = append(f.messages, sent{to: to.Recipient(), what: text})
	return &telebot.Message{}, nil
}

func setup(t *testing.T, sender notifier.Sender, lang string) (*notifier.Notifier, *metrics.Metrics) {
	t.Helper()
	store := memory.New()
	store.AddFacility(models.Facility{ID: "F1", Name: "Pepsi plant", NotifyChatID: -1001})
	store.AddFacility(models.Facility{ID: "F2", Name: "Arena"})

	localizer, err := i18n.NewLocalizer()
	require.NoError(t, err)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return notifier.New(log, sender, store, localizer, m, lang).WithRateDelay(0), m
}

func event(facilityID string, typ events.Type, status models.TaskStatus) events.Event {
	return events.Event{
		Type: typ,
		Task: models.Task{
			ID:           "W1-2025-11-20",
			FacilityID:   facilityID,
			FacilityName: "Pepsi plant",
			Name:         "Mop floors",
			Location:     "Pepsi plant / Hall",
			Date:         civil.Date{Year: 2025, Month: 11, Day: 20},
			Status:       status,
			Photos:       []string{"https://photos/1.jpg"},
		},
		Actor:   models.Actor{ID: "u1", Role: models.RoleManager},
		Comment: "slippery",
		At:      time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestHandle(t *testing.T) {
	t.Parallel()

	t.Run("success - sends to facility chat", func(t *testing.T) {
		t.Parallel()
		sender := &fakeSender{}
		n, m := setup(t, sender, "en")

		err := n.Handle(t.Context(), event("F1", events.TaskCommented, models.StatusAvailable))

		require.NoError(t, err)
		require.Len(t, sender.messages, 1)
		assert.Equal(t, "-1001", sender.messages[0].to)
		assert.Equal(t,
			"💬 New comment on *Mop floors*\n📍 Pepsi plant / Hall\n🗓 2025-11-20\n👤 u1: slippery",
			sender.messages[0].what)
		assert.InDelta(t, 1, testutil.ToFloat64(m.SentMessages.WithLabelValues("task.commented")), 0)
	})

	t.Run("success - facility without chat is skipped", func(t *testing.T) {
		t.Parallel()
		sender := &fakeSender{}
		n, _ := setup(t, sender, "en")

		require.NoError(t, n.Handle(t.Context(), event("F2", events.TaskFailed, models.StatusFailed)))
		assert.Empty(t, sender.messages)
	})

	t.Run("success - without metrics", func(t *testing.T) {
		t.Parallel()
		store := memory.New()
		store.AddFacility(models.Facility{ID: "F1", Name: "Pepsi plant", NotifyChatID: -1001})
		localizer, err := i18n.NewLocalizer()
		require.NoError(t, err)
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		sender := &fakeSender{}
		n := notifier.New(log, sender, store, localizer, nil, "en").WithRateDelay(0)

		require.NoError(t, n.Handle(t.Context(), event("F1", events.TaskCompleted, models.StatusCompleted)))
		require.Len(t, sender.messages, 1)

		n = notifier.New(log, &fakeSender{err: assert.AnError}, store, localizer, nil, "en").WithRateDelay(0)
		require.ErrorIs(t, n.Handle(t.Context(), event("F1", events.TaskCompleted, models.StatusCompleted)), assert.AnError)
	})

	t.Run("error - unknown facility", func(t *testing.T) {
		t.Parallel()
		n, _ := setup(t, &fakeSender{}, "en")

		err := n.Handle(t.Context(), event("F9", events.TaskFailed, models.StatusFailed))
		require.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("error - send failure", func(t *testing.T) {
		t.Parallel()
		n, m := setup(t, &fakeSender{err: assert.AnError}, "en")

		err := n.Handle(t.Context(), event("F1", events.TaskFailed, models.StatusFailed))
		require.ErrorIs(t, err, assert.AnError)
		assert.InDelta(t, 1, testutil.ToFloat64(m.SentMessages.WithLabelValues("error")), 0)
	})

	t.Run("success - rate delay respects cancellation", func(t *testing.T) {
		t.Parallel()
		sender := &fakeSender{}
		n, _ := setup(t, sender, "en")
		n.WithRateDelay(time.Hour)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		require.NoError(t, n.Handle(ctx, event("F1", events.TaskStarted, models.StatusInProgress)))
		assert.Len(t, sender.messages, 1)
	})
}

func TestFormat(t *testing.T) {
	t.Parallel()
	n, _ := setup(t, &fakeSender{}, "ru-RU")

	completed := n.Format(event("F1", events.TaskCompleted, models.StatusCompletedWithPhoto))
	assert.Equal(t, "📸 *Mop floors* выполнено, фото: 1\n📍 Pepsi plant / Hall\n🗓 2025-11-20\n👤 u1", completed)

	failed := event("F1", events.TaskFailed, models.StatusFailed)
	failed.Task.Location = ""
	assert.Equal(t, "❌ *Mop floors* не выполнено в срок\n📍 Pepsi plant\n🗓 2025-11-20", n.Format(failed))
}
