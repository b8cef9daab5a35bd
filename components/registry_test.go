package components

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, comps ...*Component) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, c := range comps {
		require.NoError(t, reg.Register(c))
	}
	return reg
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestParseDefinition(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		wantName   string
		wantParams []string
		wantTmpl   string
	}{
		{
			name:       "single parameter",
			src:        "<Element><Name>Greeting</Name><Parameter>Name</Parameter><Template>Hello <Name/>!</Template></Element>",
			wantName:   "Greeting",
			wantParams: []string{"Name"},
			wantTmpl:   "Hello <Name/>!",
		},
		{
			name: "ordered parameters",
			src: `<?xml version="1.0"?>
<Element>
    <Name>Card</Name>
    <Parameter>Title</Parameter>
    <Parameter>Body</Parameter>
    <Template>
        <h2><Title/></h2><div><Body/></div>
    </Template>
</Element>`,
			wantName:   "Card",
			wantParams: []string{"Title", "Body"},
			wantTmpl:   "<h2><Title/></h2><div><Body/></div>",
		},
		{
			name:       "no parameters",
			src:        "<Element><Name>Rule</Name><Template><hr></Template></Element>",
			wantName:   "Rule",
			wantParams: []string{},
			wantTmpl:   "<hr>",
		},
		{
			name:       "template that is not well formed xml",
			src:        "<Element><Name>Form</Name><Template><input name=q><br> & <p>open</Template></Element>",
			wantName:   "Form",
			wantParams: []string{},
			wantTmpl:   "<input name=q><br> & <p>open",
		},
		{
			name:       "template containing template markers",
			src:        "<Element><Name>Nest</Name><Template><Template>x</Template></Template></Element>",
			wantName:   "Nest",
			wantParams: []string{},
			wantTmpl:   "<Template>x</Template>",
		},
		{
			name:       "duplicate parameters collapse",
			src:        "<Element><Name> Dup </Name><Parameter>A</Parameter><Parameter> A </Parameter><Parameter>B</Parameter><Template><A/><B/></Template></Element>",
			wantName:   "Dup",
			wantParams: []string{"A", "B"},
			wantTmpl:   "<A/><B/>",
		},
		{
			name:       "schema attributes on root",
			src:        `<Element xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:noNamespaceSchemaLocation="Element.xsd"><Name>S</Name><Template>s</Template></Element>`,
			wantName:   "S",
			wantParams: []string{},
			wantTmpl:   "s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseDefinition("test.xml", []byte(tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, c.Name)
			assert.Equal(t, tt.wantParams, c.Parameters)
			assert.Equal(t, tt.wantTmpl, c.Template)
			assert.Equal(t, "test.xml", c.File)
		})
	}
}

func TestParseDefinitionErrors(t *testing.T) {
	tests := []struct {
		name          string
		src           string
		wantComponent string
		wantReason    string
	}{
		{"missing template", "<Element><Name>Greeting</Name></Element>", "Greeting", "missing <Template>"},
		{"unterminated template", "<Element><Name>Greeting</Name><Template>x</Element>", "Greeting", "missing <Template>"},
		{"missing name", "<Element><Template>x</Template></Element>", "", "missing <Name>"},
		{"blank name", "<Element><Name>  </Name><Template>x</Template></Element>", "", "missing <Name>"},
		{"wrong root", "<Component><Name>X</Name><Template>x</Template></Component>", "X", "root must be <Element>, found <Component>"},
		{"malformed under the right root", "<Element><Name>X</Name><Parameter>P</Element><Template>x</Template>", "X", "malformed XML"},
		{"not xml", "Name: X <Template>x</Template>", "", "no <Element> root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition("bad.xml", []byte(tt.src))
			require.Error(t, err)

			var defErr *DefinitionError
			require.True(t, errors.As(err, &defErr), "got %T", err)
			assert.Equal(t, "bad.xml", defErr.File)
			assert.Equal(t, tt.wantComponent, defErr.Component)
			assert.Contains(t, defErr.Reason, tt.wantReason)
			assert.Contains(t, err.Error(), "bad.xml")
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := newTestRegistry(t,
		&Component{Name: "Greeting", Parameters: []string{"Name"}, Template: "Hello <Name/>!"},
		&Component{Name: "Card", Parameters: []string{"Title", "Body", "Name"}, Template: "<Title/><Body/>"},
	)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"Card", "Greeting"}, reg.Names())
	assert.Equal(t, []string{"Body", "Name", "Title"}, reg.ParameterNames())

	c, ok := reg.Lookup("Greeting")
	require.True(t, ok)
	assert.Equal(t, "Hello <Name/>!", c.Template)

	_, ok = reg.Lookup("greeting")
	assert.False(t, ok, "lookup is case sensitive")
	assert.False(t, reg.Has("Missing"))

	t.Run("register replaces", func(t *testing.T) {
		require.NoError(t, reg.Register(&Component{Name: "Greeting", Template: "Hi"}))
		c, _ := reg.Lookup("Greeting")
		assert.Equal(t, "Hi", c.Template)
		assert.Equal(t, 2, reg.Len())
	})

	t.Run("register rejects unnamed", func(t *testing.T) {
		err := reg.Register(&Component{Template: "x"})
		var defErr *DefinitionError
		assert.True(t, errors.As(err, &defErr))
	})

	t.Run("sealed registry refuses changes", func(t *testing.T) {
		reg.Seal()
		assert.True(t, reg.Sealed())
		err := reg.Register(&Component{Name: "Late", Template: "x"})
		assert.ErrorIs(t, err, ErrSealed)
		assert.False(t, reg.Has("Late"))
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"Greeting.xml": "<Element><Name>Greeting</Name><Parameter>Name</Parameter><Template>Hello <Name/>!</Template></Element>",
		"box.xml":      "<Element><Name>Box</Name><Template><div class=\"box\"></div></Template></Element>",
		"Element.xsd":  "<xs:schema/>",
		"README.md":    "not a component",
		"nested/X.xml": "<Element><Name>X</Name><Template>x</Template></Element>",
	})

	reg, err := Load(dir, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Box", "Greeting"}, reg.Names())
	assert.False(t, reg.Sealed())

	c, ok := reg.Lookup("Greeting")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "Greeting.xml"), c.File)
}

func TestLoadExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.comp": "<Element><Name>A</Name><Template>a</Template></Element>",
		"b.xml":  "<Element><Name>B</Name><Template>b</Template></Element>",
	})

	reg, err := Load(dir, LoadOptions{Extensions: []string{".comp"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, reg.Names())
}

func TestLoadDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.xml": "<Element><Name>Dup</Name><Template>first</Template></Element>",
		"b.xml": "<Element><Name>Dup</Name><Template>second</Template></Element>",
	})

	t.Run("rejected by default", func(t *testing.T) {
		_, err := Load(dir, LoadOptions{})
		var defErr *DefinitionError
		require.True(t, errors.As(err, &defErr))
		assert.Equal(t, "Dup", defErr.Component)
		assert.Equal(t, filepath.Join(dir, "b.xml"), defErr.File)
		assert.Contains(t, err.Error(), "a.xml")
	})

	t.Run("last wins when shadowing is allowed", func(t *testing.T) {
		reg, err := Load(dir, LoadOptions{AllowShadowing: true})
		require.NoError(t, err)
		c, ok := reg.Lookup("Dup")
		require.True(t, ok)
		assert.Equal(t, "second", c.Template)
	})
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope"), LoadOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("bad definition", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{
			"bad.xml": "<Element><Name>Bad</Name></Element>",
		})
		_, err := Load(dir, LoadOptions{})
		var defErr *DefinitionError
		require.True(t, errors.As(err, &defErr))
		assert.Equal(t, "Bad", defErr.Component)
	})
}
