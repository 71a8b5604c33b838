package jack

import (
	"fmt"
	"strings"

	"github.com/hmny-tetris/toolchain/pkg/utils"
)

type Scope struct {
	name    string
	entries utils.Stack[Variable]
}

type ScopeTable struct {
	static utils.Stack[Variable]

	local     Scope
	field     Scope
	parameter Scope
}

func NewScopeTable() *ScopeTable {
	return &ScopeTable{
		static:    utils.Stack[Variable]{},
		local:     Scope{},
		field:     Scope{},
		parameter: Scope{},
	}
}

func (st *ScopeTable) PushClassScope(class string) {
	newScope := fmt.Sprintf("%s.Global", class)
	st.field = Scope{name: newScope, entries: utils.Stack[Variable]{}}
}

func (st *ScopeTable) PopClassScope() { st.field = Scope{} }

func (st *ScopeTable) PushSubRoutineScope(method string) {
	newScope := strings.ReplaceAll(st.GetScope(), "Global", method)
	st.local = Scope{name: newScope, entries: utils.Stack[Variable]{}}
	st.parameter = Scope{name: newScope, entries: utils.Stack[Variable]{}}
}

func (st *ScopeTable) PopSubroutineScope() { st.local, st.parameter = Scope{}, Scope{} }

func (st *ScopeTable) GetScope() string {
	if st.local.name != "" && st.parameter.name != "" {
		return st.local.name
	}

	if st.field.name != "" {
		return st.field.name
	}

	return "Global"
}

func (st *ScopeTable) RegisterVariable(new Variable) {
	switch new.VarType {
	case Local:
		st.local.entries.Push(new)
	case Field:
		st.field.entries.Push(new)
	case Parameter:
		st.parameter.entries.Push(new)
	case Static:
		st.static.Push(new)
	}
}

// Count returns how many variables of the given kind are currently registered
// in the active scope, used to size the constructor's field-count prelude
// and a subroutine's local-variable count without re-walking the class.
func (st *ScopeTable) Count(kind VarType) uint16 {
	switch kind {
	case Local:
		return uint16(st.local.entries.Count())
	case Field:
		return uint16(st.field.entries.Count())
	case Parameter:
		return uint16(st.parameter.entries.Count())
	case Static:
		return uint16(st.static.Count())
	default:
		return 0
	}
}

func (st *ScopeTable) ResolveVariable(name string) (uint16, Variable, error) {
	scopes := []utils.Stack[Variable]{st.local.entries, st.parameter.entries, st.field.entries, st.static}

	for _, scope := range scopes {
		// The iterator walks from the newest entry down, so the latest declaration shadows
		// older ones; 'idx' is the entry's position counted from the bottom of the stack.
		idx, found, match := scope.Count(), false, Variable{}
		scope.Iterator()(func(entry Variable) bool {
			idx--
			if entry.Name == name {
				found, match = true, entry
				return false
			}
			return true
		})
		if found {
			return uint16(idx), match, nil
		}
	}

	return 0, Variable{}, fmt.Errorf("variable '%s' undeclared, not found in any scope", name)
}
