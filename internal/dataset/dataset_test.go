package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	d := Default()
	assert.Equal(t, DefaultName, d.Name)
	require.Equal(t, 10, d.Len())

	products, err := d.Products()
	require.NoError(t, err)
	assert.Equal(t, SampleProducts, products)
	assert.Equal(t, "Laptop Pro", products[0].Name)
	assert.Equal(t, float64(1200), products[0].Price)

	// Mutating the copy must not touch the catalog.
	d.Records[0] = json.RawMessage(`{}`)
	assert.Equal(t, 10, Default().Len())
	assert.Equal(t, "Laptop Pro", SampleProducts[0].Name)
}

func TestParse_PreservesOrderAndContent(t *testing.T) {
	raw := []byte(`[{"name":"B","price":2,"extra":true},{"name":"A","price":1}, 42, "x"]`)
	d, warnings, err := Parse("items.json", raw)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "items.json", d.Name)
	require.Equal(t, 4, d.Len())
	assert.JSONEq(t, `{"name":"B","price":2,"extra":true}`, string(d.Records[0]))
	assert.JSONEq(t, `{"name":"A","price":1}`, string(d.Records[1]))
	assert.Equal(t, "42", string(d.Records[2]))
	assert.Equal(t, `"x"`, string(d.Records[3]))
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"object", `{"name":"Laptop"}`, ErrNotArray},
		{"number", `42`, ErrNotArray},
		{"string", `"[1,2]"`, ErrNotArray},
		{"null", `null`, ErrNotArray},
		{"garbage", `[1, 2`, ErrInvalidJSON},
		{"empty", ``, ErrInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, err := Parse("f.json", []byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, d)
		})
	}
}

func TestParse_SoftShapeWarning(t *testing.T) {
	d, warnings, err := Parse("cities.json", []byte(`[{"city":"Ankara","population":5}]`))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "product shape")

	_, warnings, err = Parse("empty.json", []byte(` [] `))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	_, warnings, err = Parse("scalars.json", []byte(`[1,2,3]`))
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

func TestPrettyJSON(t *testing.T) {
	d, _, err := Parse("a.json", []byte(`[{"name":"A","price":1}]`))
	require.NoError(t, err)
	out, err := d.PrettyJSON()
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"name\": \"A\",\n    \"price\": 1\n  }\n]", out)

	empty, err := (&Dataset{}).PrettyJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)
}

func TestProducts_Mismatch(t *testing.T) {
	d, _, err := Parse("a.json", []byte(`[{"name":"A","price":"cheap"}]`))
	require.NoError(t, err)
	_, err = d.Products()
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))

	got := make(chan string, 4)
	w, err := NewWatcher(path, func(name string, raw []byte) {
		got <- name + ":" + strings.TrimSpace(string(raw))
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"A","price":1}]`), 0o644))

	select {
	case v := <-got:
		assert.Equal(t, `products.json:[{"name":"A","price":1}]`, v)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))

	got := make(chan string, 1)
	w, err := NewWatcher(path, func(name string, _ []byte) { got <- name }, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`[1]`), 0o644))

	select {
	case v := <-got:
		t.Fatalf("unexpected reload of %s", v)
	case <-time.After(400 * time.Millisecond):
	}
}
