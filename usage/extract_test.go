package usage

import (
	"bufio"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/ollama-usage/types/model"
)

const (
	hexA = "1a9a388336073f25f143cdd39abe37b306a367d031d6c04a79bbb545232ae113"
	hexB = "ff82381e2bea77d91c1b824c7afb83f6fb73e9f7de9dda631bcdbca564aa5435"
	hexC = "43f7a214e5329f672bb05404cfba1913cbb70fdaa1a17497224e1925046b0ed5"
)

func marker(hex string) string {
	return "llama_model_loader: loaded meta data with 35 key-value pairs and 362 tensors from /Users/matt/.ollama/models/blobs/sha256-" + hex + " (version GGUF V3 (latest))"
}

func block(source string, lines ...string) LogBlock {
	return LogBlock{Source: source, Data: []byte(strings.Join(lines, "\n") + "\n")}
}

func collect(t *testing.T, x Extractor, blocks ...LogBlock) ([]Event, []error) {
	t.Helper()

	var events []Event
	var errs []error
	for e, err := range x.Events(blocks...) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, e)
	}
	return events, errs
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return ts
}

func TestExtractSampleLine(t *testing.T) {
	b := block("server.log",
		"time=2024-10-29T07:18:20.601-07:00",
		marker(hexA),
	)

	events, errs := collect(t, Extractor{}, b)
	require.Empty(t, errs)
	require.Len(t, events, 1)
	assert.Equal(t, model.MustParseDigest(hexA), events[0].Digest)
	assert.True(t, events[0].LoadedAt.Equal(mustTime(t, "2024-10-29T07:18:20.601-07:00")))
}

func TestExtract(t *testing.T) {
	cases := map[string]struct {
		lines []string
		want  []Event
		errs  []error
	}{
		"slog line": {
			lines: []string{
				`time=2024-10-29T07:18:20.601-07:00 level=INFO source=server.go:105 msg="system memory" total="32.0 GiB"`,
				marker(hexA),
			},
			want: []Event{{Digest: model.MustParseDigest(hexA), LoadedAt: mustTime(t, "2024-10-29T07:18:20.601-07:00")}},
		},
		"quoted time": {
			lines: []string{
				`time="2024-10-29T07:18:20.601Z" level=INFO`,
				marker(hexA),
			},
			want: []Event{{Digest: model.MustParseDigest(hexA), LoadedAt: mustTime(t, "2024-10-29T07:18:20.601Z")}},
		},
		"most recent timestamp wins": {
			lines: []string{
				"time=2024-10-29T07:00:00.000-07:00",
				"time=2024-10-29T08:00:00.000-07:00",
				marker(hexA),
				"time=2024-10-28T01:00:00.000-07:00",
				marker(hexB),
			},
			want: []Event{
				{Digest: model.MustParseDigest(hexA), LoadedAt: mustTime(t, "2024-10-29T08:00:00.000-07:00")},
				{Digest: model.MustParseDigest(hexB), LoadedAt: mustTime(t, "2024-10-28T01:00:00.000-07:00")},
			},
		},
		"marker before any timestamp": {
			lines: []string{
				marker(hexA),
			},
			want: []Event{{Digest: model.MustParseDigest(hexA)}},
		},
		"marker without digest": {
			lines: []string{
				"time=2024-10-29T07:18:20.601-07:00",
				"llama_model_loader: loaded meta data with 35 key-value pairs from /tmp/model.gguf",
			},
		},
		"marker not at line start": {
			lines: []string{
				"time=2024-10-29T07:18:20.601-07:00",
				"  " + marker(hexA),
			},
		},
		"windows path": {
			lines: []string{
				"time=2024-10-29T07:18:20.601+02:00",
				`llama_model_loader: loaded meta data with 29 key-value pairs and 292 tensors from C:\Users\me\.ollama\models\blobs\sha256-` + hexC + `\x (version GGUF V3 (latest))`,
			},
			want: []Event{{Digest: model.MustParseDigest(hexC), LoadedAt: mustTime(t, "2024-10-29T07:18:20.601+02:00")}},
		},
		"crlf line endings": {
			lines: []string{
				"time=2024-10-29T07:18:20.601-07:00\r",
				marker(hexA) + "\r",
			},
			want: []Event{{Digest: model.MustParseDigest(hexA), LoadedAt: mustTime(t, "2024-10-29T07:18:20.601-07:00")}},
		},
		"unparseable timestamp keeps previous": {
			lines: []string{
				"time=2024-10-29T07:18:20.601-07:00",
				"time=yesterday",
				marker(hexA),
			},
			want: []Event{{Digest: model.MustParseDigest(hexA), LoadedAt: mustTime(t, "2024-10-29T07:18:20.601-07:00")}},
			errs: []error{ErrUnparseableTimestamp},
		},
		"timestamp without offset": {
			lines: []string{
				"Couldn't find '/root/.ollama/id_ed25519'. Generating new private key.",
				"time=2024-10-29T07:18:20.601",
				marker(hexA),
			},
			want: []Event{{Digest: model.MustParseDigest(hexA)}},
			errs: []error{ErrUnparseableTimestamp},
		},
		"invalid digest": {
			lines: []string{
				"time=2024-10-29T07:18:20.601-07:00",
				"llama_model_loader: loaded meta data from /blobs/sha256-xyz (version GGUF V3 (latest))",
				marker(hexB),
			},
			want: []Event{{Digest: model.MustParseDigest(hexB), LoadedAt: mustTime(t, "2024-10-29T07:18:20.601-07:00")}},
			errs: []error{ErrInvalidDigest},
		},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			got, errs := collect(t, Extractor{}, block("server.log", tt.lines...))
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Digest, got[i].Digest)
				assert.True(t, tt.want[i].LoadedAt.Equal(got[i].LoadedAt), "event %d: got %v want %v", i, got[i].LoadedAt, tt.want[i].LoadedAt)
			}

			require.Len(t, errs, len(tt.errs))
			for i := range tt.errs {
				assert.ErrorIs(t, errs[i], tt.errs[i])

				var lerr *LineError
				require.True(t, errors.As(errs[i], &lerr))
				assert.Equal(t, "server.log", lerr.Source)
				assert.Equal(t, 2, lerr.Line)
			}
		})
	}
}

func TestExtractLegacyTimestamp(t *testing.T) {
	loc := time.FixedZone("PDT", -7*60*60)
	b := block("server.log",
		"2024/01/15 10:00:00 routes.go:1008: INFO Listening on 127.0.0.1:11434 (version 0.1.20)",
		marker(hexA),
	)

	events, errs := collect(t, Extractor{Location: loc}, b)
	require.Empty(t, errs)
	require.Len(t, events, 1)
	assert.True(t, events[0].LoadedAt.Equal(time.Date(2024, 1, 15, 10, 0, 0, 0, loc)))
}

func TestExtractTimestampsResetPerBlock(t *testing.T) {
	first := block("server-1.log",
		"time=2024-10-29T07:18:20.601-07:00",
		marker(hexA),
	)
	second := block("server.log",
		marker(hexB),
	)

	events, errs := collect(t, Extractor{}, first, second)
	require.Empty(t, errs)
	require.Len(t, events, 2)
	assert.False(t, events[0].LoadedAt.IsZero())
	assert.True(t, events[1].LoadedAt.IsZero())
}

func TestExtractIsRestartable(t *testing.T) {
	b := block("server.log",
		"time=2024-10-29T07:18:20.601-07:00",
		marker(hexA),
		"time=2024-10-30T07:18:20.601-07:00",
		marker(hexB),
	)

	seq := Extract(b)
	var first, second []Event
	for e := range seq {
		first = append(first, e)
	}
	for e := range seq {
		second = append(second, e)
	}
	assert.Equal(t, first, second)
}

func TestExtractStopsEarly(t *testing.T) {
	b := block("server.log", marker(hexA), marker(hexB), marker(hexC))

	var n int
	for range Extract(b) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestExtractLineTooLong(t *testing.T) {
	b := block("server.log",
		"time=2024-10-29T07:18:20.601-07:00 level=INFO",
		strings.Repeat("x", maxLineSize+1),
		"time=2024-10-29T08:00:00.000-07:00 level=INFO",
		marker(hexA),
	)

	events, errs := collect(t, Extractor{}, b)

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], bufio.ErrTooLong)
	var lerr *LineError
	require.True(t, errors.As(errs[0], &lerr))
	assert.Equal(t, 2, lerr.Line)

	require.Len(t, events, 1)
	assert.Equal(t, model.MustParseDigest(hexA), events[0].Digest)
	assert.Equal(t, mustTime(t, "2024-10-29T08:00:00.000-07:00"), events[0].LoadedAt)
}

func TestExtractCRLF(t *testing.T) {
	b := LogBlock{Source: "server.log", Data: []byte("time=2024-10-29T07:18:20.601-07:00 level=INFO\r\n" + marker(hexA) + "\r\n")}

	events, errs := collect(t, Extractor{}, b)
	require.Empty(t, errs)
	require.Len(t, events, 1)
	assert.Equal(t, model.MustParseDigest(hexA), events[0].Digest)
	assert.Equal(t, mustTime(t, "2024-10-29T07:18:20.601-07:00"), events[0].LoadedAt)
}
