package services

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chatclient/backend"
	"chatclient/models"
)

type FeedState int

const (
	FeedIdle FeedState = iota
	FeedLoading
	FeedReady
	FeedEmpty
	FeedError
)

func (s FeedState) String() string {
	return [...]string{"idle", "loading", "ready", "empty", "error"}[s]
}

// FeedSource says where the authoritative part of a view came from.
type FeedSource int

const (
	SourceNone FeedSource = iota
	SourceSnapshot
	SourceLive
)

type FeedView struct {
	ConversationID string
	State          FeedState
	Source         FeedSource
	Messages       []models.Message
	Err            string
}

// overlayEntry is a message the client shows before, or instead of, the
// server's copy. confirmedID is set once the server has accepted it.
type overlayEntry struct {
	msg         models.Message
	confirmedID string
}

// Feed renders the message list of one conversation at a time.
//
// The list comes from the history load until the subscription delivers;
// from then on only live deliveries count and a late history result is
// thrown away. Every commit checks the generation and conversation it was
// started for, so nothing from a previous conversation can land after a
// switch.
type Feed struct {
	backend backend.ChatBackend
	log     *zap.Logger

	switchMu sync.Mutex

	mu        sync.Mutex
	gen       uint64
	convID    string
	source    FeedSource
	base      []models.Message
	errMsg    string
	overlay   []overlayEntry
	cancel    context.CancelFunc
	done      chan struct{}
	listeners []func(FeedView)

	notifyMu  sync.Mutex
	published *FeedView
}

func NewFeed(b backend.ChatBackend, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{backend: b, log: log}
}

// Switch discards the current feed and starts loading conversationID. The
// previous subscription has stopped delivering by the time Switch returns.
// An empty id leaves the feed idle.
func (f *Feed) Switch(conversationID string) {
	f.switchMu.Lock()
	defer f.switchMu.Unlock()

	f.stop()

	f.mu.Lock()
	f.gen++
	gen := f.gen
	f.convID = conversationID
	f.source = SourceNone
	f.base = nil
	f.errMsg = ""
	f.overlay = nil
	if conversationID == "" {
		f.mu.Unlock()
		f.publish()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	f.cancel = cancel
	f.done = done
	f.mu.Unlock()

	f.log.Debug("feed switched", zap.String("conversation_id", conversationID), zap.Uint64("generation", gen))
	f.publish()
	go f.run(ctx, gen, conversationID, done)
}

// Close stops the subscription and empties the feed.
func (f *Feed) Close() {
	f.Switch("")
}

// stop cancels the running subscription and waits for its goroutines.
func (f *Feed) stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (f *Feed) run(ctx context.Context, gen uint64, convID string, done chan struct{}) {
	defer close(done)

	var g errgroup.Group
	g.Go(func() error {
		msgs, err := f.backend.LoadHistory(ctx, convID)
		if ctx.Err() != nil {
			return nil
		}
		f.commitSnapshot(gen, convID, msgs, err)
		return nil
	})
	g.Go(func() error {
		updates, err := f.backend.Subscribe(ctx, convID)
		if err != nil {
			f.log.Warn("subscribe failed", zap.String("conversation_id", convID), zap.Error(err))
			return nil
		}
		for msgs := range updates {
			f.commitLive(gen, convID, msgs)
		}
		return nil
	})
	_ = g.Wait()
}

func (f *Feed) commitSnapshot(gen uint64, convID string, msgs []models.Message, err error) {
	f.mu.Lock()
	if !f.current(gen, convID) || f.source == SourceLive {
		f.mu.Unlock()
		return
	}
	if err != nil {
		f.log.Warn("load history failed", zap.String("conversation_id", convID), zap.Error(err))
		f.errMsg = err.Error()
	} else {
		f.source = SourceSnapshot
		f.base = sortedCopy(msgs)
	}
	f.mu.Unlock()
	f.publish()
}

func (f *Feed) commitLive(gen uint64, convID string, msgs []models.Message) {
	f.mu.Lock()
	if !f.current(gen, convID) {
		f.mu.Unlock()
		f.log.Debug("dropping stale delivery", zap.String("conversation_id", convID))
		return
	}
	f.source = SourceLive
	f.errMsg = ""
	f.base = sortedCopy(msgs)
	f.pruneOverlay()
	f.mu.Unlock()
	f.publish()
}

func (f *Feed) current(gen uint64, convID string) bool {
	return f.gen == gen && f.convID == convID
}

// AppendLocal shows msg in the feed right away if conversationID is still
// the one displayed. User messages stay until Confirm matches them to a
// server message present in the list; bot messages stay until the next
// switch.
func (f *Feed) AppendLocal(conversationID string, msg models.Message) bool {
	f.mu.Lock()
	if f.convID != conversationID || conversationID == "" {
		f.mu.Unlock()
		return false
	}
	msg.ConversationID = conversationID
	msg.Local = true
	f.overlay = append(f.overlay, overlayEntry{msg: msg})
	f.mu.Unlock()
	f.publish()
	return true
}

// Confirm records that the local message localID was stored as server.
func (f *Feed) Confirm(conversationID, localID string, server models.Message) {
	f.mu.Lock()
	if f.convID != conversationID {
		f.mu.Unlock()
		return
	}
	for i := range f.overlay {
		if f.overlay[i].msg.ID == localID {
			f.overlay[i].confirmedID = server.ID
		}
	}
	f.pruneOverlay()
	f.mu.Unlock()
	f.publish()
}

// pruneOverlay drops confirmed entries the authoritative list now holds.
// Callers hold f.mu.
func (f *Feed) pruneOverlay() {
	if len(f.overlay) == 0 {
		return
	}
	ids := make(map[string]struct{}, len(f.base))
	for _, m := range f.base {
		ids[m.ID] = struct{}{}
	}
	kept := f.overlay[:0]
	for _, e := range f.overlay {
		if _, ok := ids[e.confirmedID]; ok && e.confirmedID != "" {
			continue
		}
		kept = append(kept, e)
	}
	f.overlay = kept
}

// View returns what the feed currently renders.
func (f *Feed) View() FeedView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view()
}

func (f *Feed) view() FeedView {
	v := FeedView{ConversationID: f.convID, Source: f.source, Err: f.errMsg}
	msgs := make([]models.Message, 0, len(f.base)+len(f.overlay))
	msgs = append(msgs, f.base...)
	for _, e := range f.overlay {
		msgs = append(msgs, e.msg)
	}
	// stable: on equal timestamps server messages stay ahead of local ones
	models.SortMessages(msgs)
	v.Messages = msgs

	switch {
	case f.convID == "":
		v.State = FeedIdle
	case f.source == SourceNone && f.errMsg != "":
		v.State = FeedError
	case f.source == SourceNone:
		v.State = FeedLoading
	case len(msgs) == 0:
		v.State = FeedEmpty
	default:
		v.State = FeedReady
	}
	return v
}

// OnChange registers fn to receive every view that renders differently from
// the previous one. fn must not call Switch or Close.
func (f *Feed) OnChange(fn func(FeedView)) {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

func (f *Feed) publish() {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	f.mu.Lock()
	v := f.view()
	listeners := append([]func(FeedView){}, f.listeners...)
	f.mu.Unlock()

	if p := f.published; p != nil && sameView(*p, v) {
		return
	}
	f.published = &v
	for _, fn := range listeners {
		fn(v)
	}
}

func sameView(a, b FeedView) bool {
	return a.ConversationID == b.ConversationID &&
		a.State == b.State &&
		a.Err == b.Err &&
		models.SameMessages(a.Messages, b.Messages)
}

func sortedCopy(msgs []models.Message) []models.Message {
	out := append([]models.Message(nil), msgs...)
	models.SortMessages(out)
	return out
}
