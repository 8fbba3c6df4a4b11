package mir

// Module owns the global variable list, the const-string table (for
// putf), the function list, a distinguished main function, and the
// subset of runtime functions actually referenced. Per spec.md §9, the
// Module is passed explicitly through the pipeline rather than kept
// behind a process-wide singleton: there is no Module.instance.
type Module struct {
	Globals      []*GlobalVariable
	ConstStrings []string
	Functions    []*Function
	Main         *Function

	globalByName map[string]*GlobalVariable
	funcByName   map[string]*Function
}

func NewModule() *Module {
	return &Module{
		globalByName: map[string]*GlobalVariable{},
		funcByName:   map[string]*Function{},
	}
}

func (m *Module) AddGlobal(g *GlobalVariable) {
	m.Globals = append(m.Globals, g)
	m.globalByName[g.ValName()] = g
}

// AddConstString interns a format string used by putf, returning its
// index (the ".str_N" label emitted by the backend).
func (m *Module) AddConstString(s string) int {
	for i, existing := range m.ConstStrings {
		if existing == s {
			return i
		}
	}
	m.ConstStrings = append(m.ConstStrings, s)
	return len(m.ConstStrings) - 1
}

func (m *Module) AddFunction(f *Function) {
	m.Functions = append(m.Functions, f)
	m.funcByName[f.Name] = f
	if f.Name == "main" {
		m.Main = f
	}
}

// LookupGlobal and LookupFunction give passes and the mirtext builder
// a global interning lookup without a package-level singleton.
func (m *Module) LookupGlobal(name string) (*GlobalVariable, bool) {
	g, ok := m.globalByName[name]
	return g, ok
}

func (m *Module) LookupFunction(name string) (*Function, bool) {
	f, ok := m.funcByName[name]
	return f, ok
}

// DeleteFunction removes f from the module's function list (used by
// DeadFuncEliminate). f must already have zero callers.
func (m *Module) DeleteFunction(f *Function) {
	for i, x := range m.Functions {
		if x == f {
			m.Functions = append(m.Functions[:i], m.Functions[i+1:]...)
			break
		}
	}
	delete(m.funcByName, f.Name)
}

// DeleteGlobal removes g from the module's global list (used by
// GlobalVariableLocalize/GlobalArrayLocalize after rematerializing it
// as a stack alloca in main).
func (m *Module) DeleteGlobal(g *GlobalVariable) {
	for i, x := range m.Globals {
		if x == g {
			m.Globals = append(m.Globals[:i], m.Globals[i+1:]...)
			break
		}
	}
	delete(m.globalByName, g.ValName())
}

// DefinedFunctions returns the functions with bodies, in module order.
func (m *Module) DefinedFunctions() []*Function {
	var out []*Function
	for _, f := range m.Functions {
		if !f.Runtime {
			out = append(out, f)
		}
	}
	return out
}
