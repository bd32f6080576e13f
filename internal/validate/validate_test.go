package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSizeBoundaries(t *testing.T) {
	n, err := ParseSize("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, n)

	n, err = ParseSize("8")
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = ParseSize("512")
	require.NoError(t, err)
	assert.Equal(t, 512, n)

	_, err = ParseSize("7")
	assert.Error(t, err)

	_, err = ParseSize("513")
	assert.Error(t, err)

	_, err = ParseSize("not-a-number")
	assert.Error(t, err)
}

func TestParseStrokeWidthBoundaries(t *testing.T) {
	f, err := ParseStrokeWidth("")
	require.NoError(t, err)
	assert.Equal(t, DefaultStrokeF, f)

	f, err = ParseStrokeWidth("0.5")
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)

	f, err = ParseStrokeWidth("3")
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)

	_, err = ParseStrokeWidth("0.4")
	assert.Error(t, err)

	_, err = ParseStrokeWidth("3.1")
	assert.Error(t, err)
}

func TestParseColorVariants(t *testing.T) {
	c, err := ParseColor("")
	require.NoError(t, err)
	assert.Equal(t, DefaultColor, c)

	c, err = ParseColor("CURRENTCOLOR")
	require.NoError(t, err)
	assert.Equal(t, DefaultColor, c)

	c, err = ParseColor("#ff0000")
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", c)

	c, err = ParseColor("#f00")
	require.NoError(t, err)
	assert.Equal(t, "#f00", c)

	c, err = ParseColor("red")
	require.NoError(t, err)
	assert.Equal(t, "red", c)

	_, err = ParseColor("#ff00")
	assert.Error(t, err)

	_, err = ParseColor("url(javascript:alert(1))")
	assert.Error(t, err)
}

func TestParseMirror(t *testing.T) {
	assert.True(t, ParseMirror(" true "))
	assert.True(t, ParseMirror("1"))
	assert.True(t, ParseMirror("YES"))
	assert.False(t, ParseMirror("no"))
	assert.False(t, ParseMirror(""))
}

func TestNormalizeRotate(t *testing.T) {
	assert.Equal(t, 270.0, NormalizeRotate(-90))
	assert.Equal(t, 10.0, NormalizeRotate(370))
	assert.Equal(t, 0.0, NormalizeRotate(360))
}

func TestParseLimitClampsAndDefaults(t *testing.T) {
	assert.Equal(t, 20, ParseLimit("", 20, 100))
	assert.Equal(t, 1, ParseLimit("0", 20, 100))
	assert.Equal(t, 100, ParseLimit("500", 20, 100))
	assert.Equal(t, 20, ParseLimit("not-a-number", 20, 100))
}

func TestParseOffsetFloorsAndDefaults(t *testing.T) {
	assert.Equal(t, 0, ParseOffset(""))
	assert.Equal(t, 0, ParseOffset("-5"))
	assert.Equal(t, 5, ParseOffset("5.9"))
}

func TestNameValidation(t *testing.T) {
	n, err := Name("Home-2")
	require.NoError(t, err)
	assert.Equal(t, "home-2", n)

	_, err = Name("")
	assert.Error(t, err)

	_, err = Name("../etc/passwd")
	assert.Error(t, err)
}

func TestQueryValidation(t *testing.T) {
	_, err := Query("h")
	assert.Error(t, err)

	q, err := Query(" HO ")
	require.NoError(t, err)
	assert.Equal(t, "ho", q)
}

func TestCustomAttributesRejectsEventHandlersAndDangerousSchemes(t *testing.T) {
	_, err := CustomAttributes(map[string]string{"onclick": "alert(1)"})
	assert.Error(t, err)

	_, err = CustomAttributes(map[string]string{"data-href": "javascript:alert(1)"})
	assert.Error(t, err)

	_, err = CustomAttributes(map[string]string{"1bad": "x"})
	assert.Error(t, err)

	out, err := CustomAttributes(map[string]string{"data-testid": "icon"})
	require.NoError(t, err)
	assert.Equal(t, "icon", out["data-testid"])
}

func TestKeySanitizer(t *testing.T) {
	_, ok := Key("")
	assert.False(t, ok)

	_, ok = Key("../secret")
	assert.False(t, ok)

	_, ok = Key("/absolute")
	assert.False(t, ok)

	_, ok = Key("bad$char")
	assert.False(t, ok)

	out, ok := Key("lucide//home.svg")
	require.True(t, ok)
	assert.Equal(t, "lucide/home.svg", out)
}
