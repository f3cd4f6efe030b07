package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/frahmantamala/membership-portal/internal/core/events"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

func TestEvents(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Events Suite")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = Describe("EventBus", func() {
	var bus *events.EventBus

	BeforeEach(func() {
		bus = events.NewEventBus(quietLogger())
	})

	It("should deliver events to typed and wildcard handlers in order", func() {
		var seen []string
		bus.Subscribe(events.EventTypeRolesAssigned, func(ctx context.Context, e events.Event) error {
			seen = append(seen, "typed:"+e.EventType())
			return nil
		})
		bus.SubscribeAll(func(ctx context.Context, e events.Event) error {
			seen = append(seen, "all:"+e.EventType())
			return nil
		})

		evt := events.NewAssignmentChangedEvent(events.EventTypeRolesAssigned, events.SubjectUser, 7, []string{"staff"})
		Expect(bus.PublishSync(context.Background(), evt)).To(Succeed())
		Expect(seen).To(Equal([]string{
			"typed:" + events.EventTypeRolesAssigned,
			"all:" + events.EventTypeRolesAssigned,
		}))
	})

	It("should stop at the first failing handler", func() {
		var calls int32
		bus.SubscribeAll(func(ctx context.Context, e events.Event) error {
			atomic.AddInt32(&calls, 1)
			return errors.New("redis unavailable")
		})
		bus.SubscribeAll(func(ctx context.Context, e events.Event) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})

		evt := events.NewAssignmentChangedEvent(events.EventTypeRolesRemoved, events.SubjectUser, 1, nil)
		err := bus.PublishSync(context.Background(), evt)
		Expect(err).To(MatchError(ContainSubstring("redis unavailable")))
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
	})

	It("should succeed when nobody listens", func() {
		evt := events.NewAssignmentChangedEvent(events.EventTypeRolesSynced, events.SubjectUser, 1, nil)
		Expect(bus.PublishSync(context.Background(), evt)).To(Succeed())
		Expect(bus.Publish(context.Background(), evt)).To(Succeed())
	})

	It("should run async handlers", func() {
		var calls int32
		bus.Subscribe(events.EventTypePermissionsGranted, func(ctx context.Context, e events.Event) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})

		evt := events.NewAssignmentChangedEvent(events.EventTypePermissionsGranted, events.SubjectUser, 3, []string{"users.create"})
		Expect(bus.Publish(context.Background(), evt)).To(Succeed())
		Eventually(func() int32 { return atomic.LoadInt32(&calls) }).Should(Equal(int32(1)))
	})
})

var _ = Describe("AssignmentChangedEvent", func() {
	It("should carry a unique id and the payload", func() {
		a := events.NewAssignmentChangedEvent(events.EventTypeAffiliationsSynced, events.SubjectUser, 9, []string{"1", "2"})
		b := events.NewAssignmentChangedEvent(events.EventTypeAffiliationsSynced, events.SubjectUser, 9, []string{"1", "2"})

		Expect(a.EventID()).NotTo(BeEmpty())
		Expect(a.EventID()).NotTo(Equal(b.EventID()))
		Expect(a.Payload()).To(HaveKeyWithValue("subject_id", int64(9)))
		Expect(a.Targets).To(Equal([]string{"1", "2"}))
	})

	It("should never carry nil targets", func() {
		e := events.NewAssignmentChangedEvent(events.EventTypeRolesSynced, events.SubjectUser, 1, nil)
		Expect(e.Targets).NotTo(BeNil())
		Expect(e.Targets).To(BeEmpty())
	})
})

var _ = Describe("RedisPublisher", func() {
	var (
		mr     *miniredis.Miniredis
		client *redis.Client
		pub    *events.RedisPublisher
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(mr.Close)

		client, err = events.NewRedisClient(context.Background(), mr.Addr())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(client.Close)

		pub = events.NewRedisPublisher(client, "", quietLogger())
	})

	It("should default the channel", func() {
		Expect(pub.Channel()).To(Equal(events.DefaultChannel))
	})

	It("should forward events as JSON envelopes", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sub := client.Subscribe(ctx, pub.Channel())
		DeferCleanup(sub.Close)
		_, err := sub.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())

		bus := events.NewEventBus(quietLogger())
		bus.SubscribeAll(pub.Handle)

		evt := events.NewAssignmentChangedEvent(events.EventTypeRolesAssigned, events.SubjectUser, 42, []string{"editor"})
		Expect(bus.PublishSync(ctx, evt)).To(Succeed())

		msg, err := sub.ReceiveMessage(ctx)
		Expect(err).NotTo(HaveOccurred())

		var env events.Envelope
		Expect(json.Unmarshal([]byte(msg.Payload), &env)).To(Succeed())
		Expect(env.ID).To(Equal(evt.EventID()))
		Expect(env.Type).To(Equal(events.EventTypeRolesAssigned))
		Expect(env.Payload).To(HaveKeyWithValue("subject_id", BeNumerically("==", 42)))
	})

	It("should report an unreachable server", func() {
		mr.Close()

		evt := events.NewAssignmentChangedEvent(events.EventTypeRolesAssigned, events.SubjectUser, 1, nil)
		err := pub.Handle(context.Background(), evt)
		Expect(err).To(MatchError(ContainSubstring("redis publish")))
	})

	It("should fail to connect to a closed server", func() {
		addr := mr.Addr()
		mr.Close()

		_, err := events.NewRedisClient(context.Background(), addr)
		Expect(err).To(HaveOccurred())
	})
})
