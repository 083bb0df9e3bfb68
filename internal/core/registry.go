package core

import (
	"slices"
	"strings"
)

type registry struct {
	byName map[string]Command
}

func newRegistry() *registry {
	return &registry{byName: map[string]Command{}}
}

// register adds cmd under its name and aliases, wrapped by mws in order.
func (r *registry) register(cmd Command, mws ...Middleware) {
	cmd = ApplyMiddlewares(cmd, mws...)
	r.byName[cmd.Name()] = cmd
	for _, a := range cmd.Aliases() {
		r.byName[a] = cmd
	}
}

func (r *registry) get(name string) (Command, bool) {
	cmd, ok := r.byName[strings.ToLower(name)]
	return cmd, ok
}

// all returns each command once, sorted by name.
func (r *registry) all() []Command {
	seen := map[string]bool{}
	list := make([]Command, 0, len(r.byName))
	for _, cmd := range r.byName {
		if seen[cmd.Name()] {
			continue
		}
		list = append(list, cmd)
		seen[cmd.Name()] = true
	}
	slices.SortFunc(list, func(a, b Command) int { return strings.Compare(a.Name(), b.Name()) })
	return list
}
