package lang

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

var ErrUnknownLanguage = errors.New("unknown language")

// Profile describes how to compile and run code in one language.
// Profiles are loaded once at startup and shared read-only afterwards.
type Profile struct {
	ID       string `toml:"id"`
	FullName string `toml:"name"`

	CodeFilename string  `toml:"code_fname"`
	CompileCmd   *string `toml:"compile_cmd"`
	ExecuteCmd   string  `toml:"exec_cmd"`

	TimeMultiplier   float64 `toml:"time_multiplier"`
	MemoryMultiplier float64 `toml:"memory_multiplier"`
	CompileTimeoutMs int64   `toml:"compile_timeout_ms"`
}

// NeedsCompilation reports whether the profile has a compile step.
func (p *Profile) NeedsCompilation() bool {
	return p.CompileCmd != nil && *p.CompileCmd != ""
}

// AdjustedTimeLimitMs applies the language time multiplier to the
// requested limit. A zero multiplier means no adjustment.
func (p *Profile) AdjustedTimeLimitMs(timeLimitMs int64) int64 {
	if p.TimeMultiplier <= 0 {
		return timeLimitMs
	}
	return int64(float64(timeLimitMs) * p.TimeMultiplier)
}

// AdjustedMemoryLimitMb applies the language memory multiplier to the
// requested limit.
func (p *Profile) AdjustedMemoryLimitMb(memoryLimitMb int64) int64 {
	if p.MemoryMultiplier <= 0 {
		return memoryLimitMb
	}
	return int64(float64(memoryLimitMb) * p.MemoryMultiplier)
}

// Store holds the language profile table keyed by language id.
type Store struct {
	profiles map[string]*Profile
}

// Get returns the profile for the given language id.
func (s *Store) Get(id string) (*Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, id)
	}
	return p, nil
}

// IDs returns every known language id.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	return ids
}

type profileTable struct {
	Languages []Profile `toml:"languages"`
}

// LoadFile reads a toml language table from disk.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read language table: %w", err)
	}
	return Load(data)
}

// Load parses a toml language table.
func Load(data []byte) (*Store, error) {
	var table profileTable
	if err := toml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse language table: %w", err)
	}
	if len(table.Languages) == 0 {
		return nil, errors.New("language table is empty")
	}

	s := &Store{profiles: make(map[string]*Profile, len(table.Languages))}
	for i := range table.Languages {
		p := &table.Languages[i]
		if p.ID == "" {
			return nil, fmt.Errorf("language at index %d has no id", i)
		}
		if p.ExecuteCmd == "" {
			return nil, fmt.Errorf("language %s has no exec command", p.ID)
		}
		if p.CodeFilename == "" {
			return nil, fmt.Errorf("language %s has no code filename", p.ID)
		}
		if _, dup := s.profiles[p.ID]; dup {
			return nil, fmt.Errorf("duplicate language id %s", p.ID)
		}
		if p.CompileTimeoutMs == 0 {
			p.CompileTimeoutMs = defaultCompileTimeoutMs
		}
		s.profiles[p.ID] = p
	}
	return s, nil
}

const defaultCompileTimeoutMs = 30_000

// Default returns the built-in language table, used when no toml file is
// configured.
func Default() *Store {
	s, err := Load([]byte(defaultTable))
	if err != nil {
		panic(fmt.Errorf("built-in language table is broken: %w", err))
	}
	return s
}

const defaultTable = `
[[languages]]
id = "cpp17"
name = "C++17 (g++)"
code_fname = "main.cpp"
compile_cmd = "g++ -std=c++17 -O2 -o main main.cpp"
exec_cmd = "./main"
time_multiplier = 1.0
memory_multiplier = 1.0

[[languages]]
id = "c11"
name = "C11 (gcc)"
code_fname = "main.c"
compile_cmd = "gcc -std=c11 -O2 -o main main.c"
exec_cmd = "./main"
time_multiplier = 1.0
memory_multiplier = 1.0

[[languages]]
id = "python3"
name = "Python 3"
code_fname = "main.py"
exec_cmd = "python3 main.py"
time_multiplier = 3.0
memory_multiplier = 2.0

[[languages]]
id = "java17"
name = "Java 17"
code_fname = "Main.java"
compile_cmd = "javac Main.java"
exec_cmd = "java -XX:+UseSerialGC Main"
time_multiplier = 2.0
memory_multiplier = 2.0
compile_timeout_ms = 60000

[[languages]]
id = "go"
name = "Go"
code_fname = "main.go"
compile_cmd = "go build -o main main.go"
exec_cmd = "./main"
time_multiplier = 1.5
memory_multiplier = 1.5

[[languages]]
id = "shell"
name = "POSIX shell"
code_fname = "main.sh"
exec_cmd = "sh main.sh"
time_multiplier = 1.0
memory_multiplier = 1.0
`
