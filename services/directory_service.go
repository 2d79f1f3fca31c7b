package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"chatclient/backend"
	"chatclient/models"
)

// Directory is the user's list of conversations and which one is selected.
//
// When nothing is selected and the list is non-empty, the most recently
// updated conversation is selected automatically.
type Directory struct {
	backend backend.ChatBackend
	log     *zap.Logger

	mu        sync.Mutex
	convs     []models.Conversation
	selected  string
	onSelect  []func(string)
	onChange  []func([]models.Conversation)
	notifyMu  sync.Mutex
	lastNotif string
}

func NewDirectory(b backend.ChatBackend, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{backend: b, log: log}
}

// Refresh reloads the list, answering from the session cache when possible.
func (d *Directory) Refresh(ctx context.Context) ([]models.Conversation, error) {
	return d.refresh(ctx, backend.CacheFirst)
}

func (d *Directory) refresh(ctx context.Context, fetch backend.FetchPolicy) ([]models.Conversation, error) {
	convs, err := d.backend.ListConversations(ctx, fetch)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	d.apply(convs)
	return d.Conversations(), nil
}

// Create makes a conversation, refreshes from the network and selects it.
func (d *Directory) Create(ctx context.Context, title string) (string, error) {
	if title == "" {
		title = models.DefaultConversationTitle
	}
	conv, err := d.backend.CreateConversation(ctx, title)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	if _, err := d.refresh(ctx, backend.NetworkOnly); err != nil {
		d.log.Warn("refresh after create", zap.Error(err))
	}
	d.Select(conv.ID)
	return conv.ID, nil
}

func (d *Directory) Rename(ctx context.Context, id, title string) error {
	if title == "" {
		title = models.DefaultConversationTitle
	}
	if _, err := d.backend.RenameConversation(ctx, id, title); err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	_, err := d.refresh(ctx, backend.NetworkOnly)
	return err
}

// Delete removes a conversation. Deleting the selected one hands the
// selection back to the default rule.
func (d *Directory) Delete(ctx context.Context, id string) error {
	if err := d.backend.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	d.mu.Lock()
	if d.selected == id {
		d.selected = ""
	}
	d.mu.Unlock()

	_, err := d.refresh(ctx, backend.NetworkOnly)
	if err != nil {
		d.notify()
	}
	return err
}

// Watch keeps the list current from the conversations stream until ctx is
// done or the stream ends.
func (d *Directory) Watch(ctx context.Context) error {
	updates, err := d.backend.WatchConversations(ctx)
	if err != nil {
		return err
	}
	for convs := range updates {
		d.apply(convs)
	}
	return ctx.Err()
}

func (d *Directory) apply(convs []models.Conversation) {
	sorted := append([]models.Conversation(nil), convs...)
	models.SortConversations(sorted)

	d.mu.Lock()
	d.convs = sorted
	if d.selected != "" && !containsConversation(sorted, d.selected) {
		d.selected = ""
	}
	if d.selected == "" && len(sorted) > 0 {
		d.selected = sorted[0].ID
	}
	d.mu.Unlock()
	d.notify()
}

// Select makes id the active conversation. Selecting the current one is a
// no-op.
func (d *Directory) Select(id string) {
	d.mu.Lock()
	if d.selected == id {
		d.mu.Unlock()
		return
	}
	d.selected = id
	d.mu.Unlock()
	d.notify()
}

func (d *Directory) Selected() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

func (d *Directory) Conversations() []models.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Conversation(nil), d.convs...)
}

// Reset forgets the list and the selection.
func (d *Directory) Reset() {
	d.mu.Lock()
	d.convs = nil
	d.selected = ""
	d.mu.Unlock()
	d.notify()
}

// OnSelect registers fn to run whenever the selection changes.
func (d *Directory) OnSelect(fn func(id string)) {
	d.mu.Lock()
	d.onSelect = append(d.onSelect, fn)
	d.mu.Unlock()
}

// OnChange registers fn to run whenever the list is replaced.
func (d *Directory) OnChange(fn func([]models.Conversation)) {
	d.mu.Lock()
	d.onChange = append(d.onChange, fn)
	d.mu.Unlock()
}

// notify runs selection listeners when the selection moved since the last
// notification, then the change listeners. Calls are serialized.
func (d *Directory) notify() {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()

	d.mu.Lock()
	selected := d.selected
	convs := append([]models.Conversation(nil), d.convs...)
	onSelect := append([]func(string){}, d.onSelect...)
	onChange := append([]func([]models.Conversation){}, d.onChange...)
	moved := selected != d.lastNotif
	d.lastNotif = selected
	d.mu.Unlock()

	for _, fn := range onChange {
		fn(convs)
	}
	if moved {
		for _, fn := range onSelect {
			fn(selected)
		}
	}
}

func containsConversation(convs []models.Conversation, id string) bool {
	for _, c := range convs {
		if c.ID == id {
			return true
		}
	}
	return false
}
