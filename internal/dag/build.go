package dag

// StepLike is the minimal view of a workflow step the DAG needs to build
// itself; internal/store.Step satisfies it without this package importing
// the store package (avoids an import cycle between dag and store).
type StepLike interface {
	Name() string
	ID() string
	AppName() string
	StatusValue() string
	DependsOn() []string
}

// Build constructs a graph from a workflow's steps, always keying nodes by
// step_name per spec §4.8. Each depends_on entry is resolved by first
// trying to match it against another step's step_id, then its step_name —
// this tolerates the source behavior of depends_on sometimes naming a
// step_id after dispatch (see DESIGN.md's step_id/step_name decision).
func Build(steps []StepLike) *Graph {
	g := New()

	byID := make(map[string]string, len(steps)) // step_id -> step_name
	for _, s := range steps {
		if s.ID() != "" {
			byID[s.ID()] = s.Name()
		}
	}

	for _, s := range steps {
		g.AddNode(&Node{
			StepName: s.Name(),
			StepID:   s.ID(),
			App:      s.AppName(),
			Status:   Status(s.StatusValue()),
		})
	}

	names := make(map[string]bool, len(steps))
	for _, s := range steps {
		names[s.Name()] = true
	}

	for _, s := range steps {
		for _, dep := range s.DependsOn() {
			if depName, ok := byID[dep]; ok {
				g.AddEdge(depName, s.Name())
			} else if names[dep] {
				g.AddEdge(dep, s.Name())
			} else {
				// Unknown dependency name: AddEdge still records the edge
				// under `dep` although no node of that name exists. Such
				// names are rejected by the compiler's explicit
				// dependency-existence check (spec §4.7 step 8), which
				// runs before Build and Validate.
				g.AddEdge(dep, s.Name())
			}
		}
	}

	return g
}
