package cpe

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CPEStat/internal/model"
)

func TestParse(t *testing.T) {
	record, err := Parse("cpe:2.3:a:apache:http_server:2.4.48:*:*:*:*:*:x64:*")
	require.NoError(t, err)

	assert.Equal(t, model.IdentifierRecord{
		Part:      "a",
		Vendor:    "apache",
		Product:   "http_server",
		Version:   "2.4.48",
		Update:    "*",
		Edition:   "*",
		Language:  "*",
		SwEdition: "*",
		TargetSw:  "*",
		TargetHw:  "x64",
		Other:     "*",
	}, record)
}

func TestParseRoundTrip(t *testing.T) {
	inputs := []string{
		"cpe:2.3:a:nginx:nginx:*:*:*:*:*:*:*:*",
		"cpe:2.3:o:microsoft:windows_10:1607:*:*:*:*:*:x64:*",
		"cpe:2.3:h:cisco:rv340:-:*:*:*:*:*:*:*",
		"cpe:2.3:a:vendor:product:NA:NA:NA:NA:NA:NA:NA:NA",
		"cpe:2.3:a::::::::::",
		`cpe:2.3:a:foo\:bar:baz:1.0:*:*:*:*:*:*:*`,
		`cpe:2.3:a:hp:insight\\diagnostics:7.4.0.1570:*:*:*:online:win2003:x64:*`,
	}

	for _, raw := range inputs {
		record, err := Parse(raw)
		require.NoError(t, err, raw)

		rejoined := "cpe:2.3:" + strings.Join(record.Fields(), ":")
		assert.Equal(t, raw, rejoined)
		assert.Equal(t, raw, record.URI())
		assert.Len(t, record.Fields(), model.FieldCount)
	}
}

func TestParseEscapedColon(t *testing.T) {
	record, err := Parse(`cpe:2.3:a:foo\:bar:baz:1.0:*:*:*:*:*:*:*`)
	require.NoError(t, err)

	assert.Equal(t, `foo\:bar`, record.Vendor)
	assert.Equal(t, "baz", record.Product)
	assert.Equal(t, "1.0", record.Version)
}

func TestParseMalformed(t *testing.T) {
	inputs := []string{
		"",
		"cpe",
		"cpe:2.3",
		"cpe:2.3:a:vendor1:prod1",
		"cpe:2.3:a:vendor:product:1.0:*:*:*:*:*:*",
		"cpe:/a:apache:http_server:2.4.48",
		// 转义后只剩 12 段
		`cpe:2.3:a:foo\:bar:1.0:*:*:*:*:*:*:*`,
	}

	for _, raw := range inputs {
		record, err := Parse(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrMalformedIdentifier), "期望 ErrMalformedIdentifier, 实际得到 %v", err)
		assert.Equal(t, model.IdentifierRecord{}, record, "格式错误时不应返回记录")
	}
}

func TestParseTooManySegments(t *testing.T) {
	_, err := Parse("cpe:2.3:a:vendor:product:1.0:*:*:*:*:*:*:*:extra")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedIdentifier))
}

func TestParseFewerThanThirteenSegmentsAlwaysFails(t *testing.T) {
	full := strings.Split("cpe:2.3:a:vendor:product:1.0:sp1:pro:en:online:linux:x86:beta", ":")
	for n := 1; n < len(full); n++ {
		raw := strings.Join(full[:n], ":")
		_, err := Parse(raw)
		assert.True(t, errors.Is(err, ErrMalformedIdentifier), "%d 段的 %q 应该解析失败", n, raw)
	}
}
