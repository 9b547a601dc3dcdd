package host

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"fluidlbm/gpu"
)

// Program holds the host entry points of a checked Source.
type Program struct {
	ctx     *Context
	name    string
	entries map[string]gpu.HostKernel
}

// Kernel is a host entry point.
type Kernel struct {
	prog *Program
	name string
	impl gpu.HostKernel
}

func (k *Kernel) Name() string   { return k.name }
func (k *Kernel) Release() error { return nil }

func (p *Program) Kernel(name string) (gpu.Kernel, error) {
	impl, ok := p.entries[name]
	if !ok {
		return nil, fmt.Errorf("host: program %q has no entry point %q", p.name, name)
	}
	return &Kernel{prog: p, name: name, impl: impl}, nil
}

func (p *Program) Release() error { return nil }

// Build checks the OpenCL text for the problems a device compiler would
// reject first (unbalanced delimiters, missing entry points) and binds the
// host implementations.
func (c *Context) Build(src gpu.Source) (gpu.Program, error) {
	fail := func(format string, args ...interface{}) error {
		return &gpu.KernelCompileError{Program: src.Name, Device: c.info.Name, Log: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(src.Text) == "" {
		return nil, fail("empty kernel source")
	}
	if err := checkDelimiters(src.Text); err != nil {
		return nil, fail("%v", err)
	}
	for name := range src.Host {
		re := regexp.MustCompile(`__kernel\s+void\s+` + regexp.QuoteMeta(name) + `\s*\(`)
		if !re.MatchString(src.Text) {
			return nil, fail("entry point %q not declared in source", name)
		}
	}
	if len(src.Host) == 0 {
		return nil, fail("no host implementation for any entry point")
	}

	entries := make(map[string]gpu.HostKernel, len(src.Host))
	for name, k := range src.Host {
		entries[name] = k
	}
	return &Program{ctx: c, name: src.Name, entries: entries}, nil
}

var closers = map[rune]rune{')': '(', '}': '{', ']': '['}

// checkDelimiters verifies (), {} and [] nest correctly outside comments.
func checkDelimiters(text string) error {
	var stack []rune
	var lines []int
	line := 1
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\n':
			line++
		case r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			line++
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				if runes[i] == '\n' {
					line++
				}
				i++
			}
			i++
		case r == '(' || r == '{' || r == '[':
			stack = append(stack, r)
			lines = append(lines, line)
		case r == ')' || r == '}' || r == ']':
			if len(stack) == 0 || stack[len(stack)-1] != closers[r] {
				return fmt.Errorf("line %d: unexpected '%c'", line, r)
			}
			stack = stack[:len(stack)-1]
			lines = lines[:len(lines)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("line %d: unclosed '%c'", lines[len(lines)-1], stack[len(stack)-1])
	}
	return nil
}

// Dispatch runs the kernel over global, spreading x slabs over the worker
// pool. It returns once every work-item has finished.
func (c *Context) Dispatch(k gpu.Kernel, global [3]int, args ...interface{}) error {
	hk, ok := k.(*Kernel)
	if !ok || hk.prog.ctx != c {
		return fmt.Errorf("host: kernel does not belong to this context")
	}
	for i, g := range global {
		if g <= 0 {
			return fmt.Errorf("host: %s: global size %d in dimension %d", hk.name, g, i)
		}
	}

	hostArgs := make([]interface{}, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case gpu.Buffer:
			b, err := c.buffer(v)
			if err != nil {
				return fmt.Errorf("host: %s arg %d: %w", hk.name, i, err)
			}
			hostArgs[i] = b
		case int32, float32, float64:
			hostArgs[i] = v
		default:
			return fmt.Errorf("host: %s arg %d: unsupported type %T", hk.name, i, a)
		}
	}

	if hk.impl.Serial || c.workers <= 1 {
		return hk.impl.Run(global, 0, global[0], hostArgs)
	}
	return c.parallelForEachX(global, hk.impl, hostArgs)
}

func (c *Context) parallelForEachX(global [3]int, impl gpu.HostKernel, args []interface{}) error {
	work := make(chan int, global[0])
	for x := 0; x < global[0]; x++ {
		work <- x
	}
	close(work)

	numWorkers := c.workers
	if numWorkers > global[0] {
		numWorkers = global[0]
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for x := range work {
				if err := impl.Run(global, x, x+1, args); err != nil {
					once.Do(func() { firstErr = err })
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}
