// Package try turns (value, error) pairs into values, failing fatally on error.
//
//	conf := try.To(kconf.LoadTychoConfig(path)).OrFatalf(logger, "can not read configuration: %s")
package try

// Fataler stops the program or the test. *testing.T and loggers are.
type Fataler interface {
	Fatal(...any)
}

// Fatalfer is Fataler with a format. *testing.T and loggers are.
type Fatalfer interface {
	Fatalf(string, ...any)
}

// Result is a value, or an error which prevented it.
type Result[T any] struct {
	value T
	err   error
}

func To[T any](value T, err error) Result[T] {
	if err != nil {
		return Result[T]{err: err}
	}
	return Result[T]{value: value}
}

func (r Result[T]) Get() (T, error) {
	return r.value, r.err
}

// OrDefault returns the value, or d on error.
func (r Result[T]) OrDefault(d T) T {
	if r.err != nil {
		return d
	}
	return r.value
}

// OrFatal returns the value, or calls f.Fatal with the error.
//
// When f has Helper (like *testing.T), it is called before Fatal.
func (r Result[T]) OrFatal(f Fataler) T {
	if r.err == nil {
		return r.value
	}
	if h, ok := f.(interface{ Helper() }); ok {
		h.Helper()
	}
	f.Fatal(r.err)
	return *new(T)
}

// OrFatalf is OrFatal with a format, which takes the error as its only argument.
func (r Result[T]) OrFatalf(f Fatalfer, format string) T {
	if r.err == nil {
		return r.value
	}
	if h, ok := f.(interface{ Helper() }); ok {
		h.Helper()
	}
	f.Fatalf(format, r.err)
	return *new(T)
}
