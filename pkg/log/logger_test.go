package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	msgs   []string
	fields [][]Field
}

func (r *recorder) Debug(msg string, fields ...Field) { r.add(msg, fields) }
func (r *recorder) Info(msg string, fields ...Field)  { r.add(msg, fields) }
func (r *recorder) Warn(msg string, fields ...Field)  { r.add(msg, fields) }
func (r *recorder) Error(msg string, fields ...Field) { r.add(msg, fields) }

func (r *recorder) add(msg string, fields []Field) {
	r.msgs = append(r.msgs, msg)
	r.fields = append(r.fields, fields)
}

func TestWith_PrependsFields(t *testing.T) {
	rec := &recorder{}
	l := With(With(rec, String("component", "reroute")), App("navbar"))

	l.Info("mounted", Int("n", 1))

	assert.Equal(t, []string{"mounted"}, rec.msgs)
	assert.Equal(t, []Field{String("component", "reroute"), App("navbar"), Int("n", 1)}, rec.fields[0])
}

func TestWith_NoFieldsReturnsSameLogger(t *testing.T) {
	rec := &recorder{}
	assert.Same(t, rec, With(rec).(*recorder))
}

func TestZerologAdapter_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithLogger(zerolog.New(&buf))

	l.Warn("lifecycle slow", App("navbar"), Lifecycle("mount"), Err(errors.New("boom")), Strings("mounted", []string{"a"}))

	out := buf.String()
	for _, want := range []string{`"app":"navbar"`, `"lifecycle":"mount"`, `"error":"boom"`, `"mounted":["a"]`, `"level":"warn"`} {
		assert.True(t, strings.Contains(out, want), "missing %s in %s", want, out)
	}
}

func TestZerologAdapter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapter(zerolog.WarnLevel, &buf)

	l.Info("hidden")
	assert.Empty(t, buf.String())
}

func TestOrNoop(t *testing.T) {
	assert.IsType(t, NoopLogger{}, OrNoop(nil))
	rec := &recorder{}
	assert.Same(t, rec, OrNoop(rec).(*recorder))
}
