package session

import (
	"context"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/rasa-chat/backend/internal/service/transport"
)

func TestRegistryMountGetUnmount(t *testing.T) {
	reg := NewRegistry(replyWith("hi"), WithSenderID("widget"))
	ctx := context.Background()

	ctrl, err := reg.Mount(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ctrl.ID())
	require.Equal(t, "widget", ctrl.SenderID())
	require.Equal(t, 1, reg.Len())

	got, err := reg.Get(ctx, ctrl.ID())
	require.NoError(t, err)
	require.Same(t, ctrl, got)

	require.NoError(t, reg.Unmount(ctx, ctrl.ID()))
	require.True(t, ctrl.Closed())
	require.Zero(t, reg.Len())

	_, err = reg.Get(ctx, ctrl.ID())
	require.True(t, errors.Is(err, ErrSessionNotFound))
	require.True(t, errors.Is(reg.Unmount(ctx, ctrl.ID()), ErrSessionNotFound))
}

func TestRegistrySessionsAreIndependent(t *testing.T) {
	reg := NewRegistry(replyWith("hi"))
	ctx := context.Background()

	a, err := reg.Mount(ctx)
	require.NoError(t, err)
	b, err := reg.Mount(ctx)
	require.NoError(t, err)
	require.NotEqual(t, a.ID(), b.ID())

	submitAndWait(t, a, "only a")

	require.Len(t, a.Transcript(), 2)
	require.Empty(t, b.Transcript())
}

func TestRegistryRequiresTransport(t *testing.T) {
	_, err := NewRegistry(nil).Mount(context.Background())
	require.True(t, errors.Is(err, ErrTransportRequired))
}

func TestRegistryShutdownWaitsForInflight(t *testing.T) {
	g := newGate()
	reg := NewRegistry(g)
	ctx := context.Background()

	ctrl, err := reg.Mount(ctx)
	require.NoError(t, err)
	ctrl.UpdateComposer("hello")
	require.True(t, ctrl.Submit())
	<-g.calls

	done := make(chan struct{})
	go func() {
		reg.Shutdown()
		close(done)
	}()

	g.replies <- reply{fragments: fragments("bye")}
	<-done

	require.True(t, ctrl.Closed())
	require.False(t, ctrl.Busy())
	require.Len(t, ctrl.Transcript(), 2)

	_, err = reg.Mount(ctx)
	require.True(t, errors.Is(err, ErrRegistryClosed))
}

// recordingModel answers every prompt with "ok" and keeps the prompts it saw.
type recordingModel struct {
	mu      sync.Mutex
	prompts [][]*schema.Message
}

func (m *recordingModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, input)
	return schema.AssistantMessage("ok", nil), nil
}

func (m *recordingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *recordingModel) prompt(i int) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts[i]
}

func TestRegistryAgentHistoryStaysPerSession(t *testing.T) {
	ctx := context.Background()
	llm := &recordingModel{}
	agent, err := transport.NewAgentClient(ctx, llm, transport.AgentConfig{})
	require.NoError(t, err)

	reg := NewRegistry(agent, WithSessionScopedSender(true))
	a, err := reg.Mount(ctx)
	require.NoError(t, err)
	b, err := reg.Mount(ctx)
	require.NoError(t, err)

	submitAndWait(t, a, "secret from widget A")
	submitAndWait(t, b, "hello from widget B")
	submitAndWait(t, a, "again from A")

	// system + user only: B never sees A's exchange
	promptB := llm.prompt(1)
	require.Len(t, promptB, 2)
	require.Equal(t, "hello from widget B", promptB[1].Content)

	// system + A's first exchange + user
	promptA := llm.prompt(2)
	require.Len(t, promptA, 4)
	require.Equal(t, "secret from widget A", promptA[1].Content)
	require.Equal(t, "again from A", promptA[3].Content)

	reg.Shutdown()
}
