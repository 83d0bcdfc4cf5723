package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"github.com/finestructure/historyview/internal/config"
)

type Action string

type Binding struct {
	Action Action
	Keys   []string
	Help   string
	Scopes []string
}

type KeyRegistry struct {
	bindingsByScope map[string][]*Binding
	indexByScope    map[string]map[string]*Binding
	// hostScopes hold keys the embedding application handles itself.
	// They share the keyboard with the history scope.
	hostScopes []string
}

const (
	scopeGlobal  = "global"
	scopeHistory = "history"
	scopeSearch  = "search"
)

const (
	actionQuit      Action = "quit"
	actionUp        Action = "up"
	actionDown      Action = "down"
	actionSelect    Action = "select"
	actionBack      Action = "back"
	actionForward   Action = "forward"
	actionDelete    Action = "delete"
	actionImport    Action = "import"
	actionBroadcast Action = "broadcast"
	actionSearch    Action = "search"
	actionConfirm   Action = "confirm"
	actionCancel    Action = "cancel"
	actionTop       Action = "top"
	actionBottom    Action = "bottom"
)

func NewKeyRegistry() *KeyRegistry {
	r := &KeyRegistry{
		bindingsByScope: make(map[string][]*Binding),
		indexByScope:    make(map[string]map[string]*Binding),
	}

	reg := func(scope string, action Action, keys []string, help string) {
		r.Register(Binding{Action: action, Keys: keys, Help: help, Scopes: []string{scope}})
	}

	// Global fallback lookup.
	reg(scopeGlobal, actionQuit, []string{"q", "ctrl+c"}, "quit")

	reg(scopeHistory, actionUp, []string{"k", "up"}, "newer row")
	reg(scopeHistory, actionDown, []string{"j", "down"}, "older row")
	reg(scopeHistory, actionSelect, []string{"enter"}, "select")
	reg(scopeHistory, actionBack, []string{"left", "h"}, "back")
	reg(scopeHistory, actionForward, []string{"right", "l"}, "forward")
	reg(scopeHistory, actionDelete, []string{"d", "delete"}, "delete")
	reg(scopeHistory, actionImport, []string{"i"}, "import")
	reg(scopeHistory, actionBroadcast, []string{"b"}, "broadcast")
	reg(scopeHistory, actionSearch, []string{"/"}, "find")
	reg(scopeHistory, actionTop, []string{"g"}, "newest")
	reg(scopeHistory, actionBottom, []string{"G"}, "oldest")
	reg(scopeHistory, actionQuit, []string{"q", "ctrl+c"}, "quit")

	reg(scopeSearch, actionConfirm, []string{"enter"}, "jump")
	reg(scopeSearch, actionCancel, []string{"esc"}, "cancel")

	return r
}

func (r *KeyRegistry) Register(b Binding) {
	if r == nil {
		return
	}
	for _, scope := range b.Scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" || len(b.Keys) == 0 {
			continue
		}
		if _, ok := r.indexByScope[scope]; !ok {
			r.indexByScope[scope] = make(map[string]*Binding)
		}
		normKeys := normalizeKeyList(b.Keys)
		if len(normKeys) == 0 {
			continue
		}
		if r.scopeHasAnyKey(scope, normKeys) {
			continue
		}

		copyBinding := b
		copyBinding.Keys = normKeys
		copyBinding.Scopes = []string{scope}
		r.bindingsByScope[scope] = append(r.bindingsByScope[scope], &copyBinding)
		for _, k := range normKeys {
			r.indexByScope[scope][k] = &copyBinding
		}
	}
}

func (r *KeyRegistry) BindingsForScope(scope string) []Binding {
	if r == nil {
		return nil
	}
	items := r.bindingsByScope[scope]
	out := make([]Binding, 0, len(items))
	for _, b := range items {
		out = append(out, *b)
	}
	return out
}

func (r *KeyRegistry) Lookup(keyName, scope string) *Binding {
	if r == nil || keyName == "" {
		return nil
	}
	keyName = normalizeKeyName(keyName)
	if b := r.lookupInScope(keyName, scope); b != nil {
		return b
	}
	if scope != scopeGlobal {
		if b := r.lookupInScope(keyName, scopeGlobal); b != nil {
			return b
		}
	}
	return nil
}

func (r *KeyRegistry) HelpBindings(scope string) []key.Binding {
	items := r.BindingsForScope(scope)
	out := make([]key.Binding, 0, len(items))
	for _, b := range items {
		if len(b.Keys) == 0 {
			continue
		}
		helpKey := b.Keys[0]
		out = append(out, key.NewBinding(key.WithKeys(b.Keys...), key.WithHelp(helpKey, b.Help)))
	}
	return out
}

// AddHostScope registers the bindings of an application that embeds the
// history view. The host sees keys before the view does, so a key already
// used by the history or global scope is an error. Adding the same scope
// again is a no-op.
func (r *KeyRegistry) AddHostScope(scope string, bindings ...Binding) error {
	if r == nil {
		return nil
	}
	scope = strings.TrimSpace(scope)
	switch scope {
	case "":
		return fmt.Errorf("host scope: name is required")
	case scopeGlobal, scopeHistory, scopeSearch:
		return fmt.Errorf("host scope %q: name is reserved", scope)
	}
	if slices.Contains(r.hostScopes, scope) {
		return nil
	}
	taken := r.sharedKeys(nil)
	for _, b := range bindings {
		for _, k := range normalizeKeyList(b.Keys) {
			if owner, ok := taken[k]; ok {
				return fmt.Errorf("host scope %q action=%q: key %q is used by %q", scope, b.Action, k, owner)
			}
		}
	}
	for _, b := range bindings {
		b.Scopes = []string{scope}
		r.Register(b)
	}
	r.hostScopes = append(r.hostScopes, scope)
	return nil
}

// ApplyKeybindingConfig replaces the keys of existing bindings. Unknown
// scopes or actions and key conflicts are errors. On error the registry is
// left unchanged.
func (r *KeyRegistry) ApplyKeybindingConfig(items []config.KeybindingConfig) error {
	if r == nil || len(items) == 0 {
		return nil
	}
	proposed := make(map[*Binding][]string, len(items))
	for _, o := range items {
		scope := strings.TrimSpace(o.Scope)
		if scope == "" {
			return fmt.Errorf("keybinding: scope is required")
		}
		action := Action(strings.TrimSpace(o.Action))
		if action == "" {
			return fmt.Errorf("keybinding scope=%q: action is required", scope)
		}
		keys := normalizeKeyList(o.Keys)
		if len(keys) == 0 {
			return fmt.Errorf("keybinding scope=%q action=%q: keys are required", scope, action)
		}

		bindings := r.bindingsByScope[scope]
		if len(bindings) == 0 {
			return fmt.Errorf("keybinding scope=%q action=%q: unknown scope", scope, action)
		}
		var target *Binding
		for _, b := range bindings {
			if b.Action == action {
				target = b
				break
			}
		}
		if target == nil {
			return fmt.Errorf("keybinding scope=%q action=%q: unknown action in scope", scope, action)
		}
		if _, dup := proposed[target]; dup {
			return fmt.Errorf("keybinding scope=%q action=%q: duplicated entry", scope, action)
		}
		proposed[target] = keys
	}

	keysOf := func(b *Binding) []string {
		if keys, ok := proposed[b]; ok {
			return keys
		}
		return b.Keys
	}
	for scope, bindings := range r.bindingsByScope {
		seen := make(map[string]Action)
		for _, b := range bindings {
			for _, k := range keysOf(b) {
				if prev, ok := seen[k]; ok {
					return fmt.Errorf("keybinding conflict in scope=%q: key %q used by both %q and %q", scope, k, prev, b.Action)
				}
				seen[k] = b.Action
			}
		}
	}
	taken := r.sharedKeys(keysOf)
	for _, scope := range r.hostScopes {
		for _, b := range r.bindingsByScope[scope] {
			for _, k := range keysOf(b) {
				if owner, ok := taken[k]; ok {
					return fmt.Errorf("keybinding conflict: key %q of %q in scope=%q is also %q", k, b.Action, scope, owner)
				}
			}
		}
	}

	for b, keys := range proposed {
		b.Keys = keys
	}
	r.rebuildIndex()
	return nil
}

// sharedKeys maps every key of the history and global scopes to its
// action. keysOf, when set, supplies the keys of each binding.
func (r *KeyRegistry) sharedKeys(keysOf func(*Binding) []string) map[string]Action {
	if keysOf == nil {
		keysOf = func(b *Binding) []string { return b.Keys }
	}
	out := make(map[string]Action)
	for _, scope := range []string{scopeGlobal, scopeHistory} {
		for _, b := range r.bindingsByScope[scope] {
			for _, k := range keysOf(b) {
				out[k] = b.Action
			}
		}
	}
	return out
}

// helpBindings lists the help for scope. The history scope also shows the
// keys of every host scope.
func (r *KeyRegistry) helpBindings(scope string) []key.Binding {
	out := r.HelpBindings(scope)
	if r == nil || scope != scopeHistory {
		return out
	}
	for _, host := range r.hostScopes {
		out = append(out, r.HelpBindings(host)...)
	}
	return out
}

func (r *KeyRegistry) rebuildIndex() {
	r.indexByScope = make(map[string]map[string]*Binding, len(r.bindingsByScope))
	for scope, bindings := range r.bindingsByScope {
		r.indexByScope[scope] = make(map[string]*Binding)
		for _, b := range bindings {
			for _, k := range b.Keys {
				r.indexByScope[scope][k] = b
			}
		}
	}
}

func (r *KeyRegistry) lookupInScope(keyName, scope string) *Binding {
	if scope == "" {
		return nil
	}
	lookup, ok := r.indexByScope[scope]
	if !ok {
		return nil
	}
	return lookup[keyName]
}

func (r *KeyRegistry) scopeHasAnyKey(scope string, keys []string) bool {
	lookup := r.indexByScope[scope]
	for _, k := range keys {
		if _, exists := lookup[k]; exists {
			return true
		}
	}
	return false
}

func normalizeKeyList(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool)
	for _, k := range keys {
		n := normalizeKeyName(k)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func normalizeKeyName(k string) string {
	if k == " " {
		return "space"
	}
	trimmed := strings.TrimSpace(k)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) == 1 {
		ch := trimmed[0]
		if ch >= 'A' && ch <= 'Z' {
			// Preserve single uppercase rune so uppercase/lowercase bindings
			// can be distinct actions within the same scope.
			return trimmed
		}
	}
	s := strings.ToLower(trimmed)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "control+", "ctrl+")
	s = strings.ReplaceAll(s, "ctl+", "ctrl+")
	s = strings.ReplaceAll(s, "return", "enter")
	s = strings.ReplaceAll(s, "spacebar", "space")
	return s
}
