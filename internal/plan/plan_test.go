package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholasgasior/docbridge/internal/config"
	"github.com/nicholasgasior/docbridge/internal/fault"
)

func TestBuildSmartDefault(t *testing.T) {
	p, err := Build("/tmp/readme.md", "md", Options{})
	require.NoError(t, err)
	assert.Equal(t, Outbound, p.Direction)
	assert.Equal(t, "docx", p.Format)
	assert.Equal(t, "/tmp/readme.docx", p.Output)
	assert.Nil(t, p.PandocArgs)
}

func TestBuildSelfOverwriteThroughLink(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "doc.html")
	require.NoError(t, os.WriteFile(input, []byte("<p>x</p>"), 0o644))

	symlinked := filepath.Join(dir, "sym")
	require.NoError(t, os.Mkdir(symlinked, 0o755))
	require.NoError(t, os.Symlink(input, filepath.Join(symlinked, "doc.md")))
	_, err := Build(input, "md", Options{OutputDir: symlinked})
	assert.ErrorIs(t, err, fault.ErrSelfOverwrite)

	hardlinked := filepath.Join(dir, "hard")
	require.NoError(t, os.Mkdir(hardlinked, 0o755))
	require.NoError(t, os.Link(input, filepath.Join(hardlinked, "doc.md")))
	_, err = Build(input, "md", Options{OutputDir: hardlinked})
	assert.ErrorIs(t, err, fault.ErrSelfOverwrite)

	p, err := Build(input, "md", Options{OutputDir: filepath.Join(dir, "fresh")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fresh", "doc.md"), p.Output)
}

func TestBuildSmartDefaultFromConfig(t *testing.T) {
	p, err := Build("/tmp/slides.md", "md", Options{OutboundDefault: "pptx"})
	require.NoError(t, err)
	assert.Equal(t, Outbound, p.Direction)
	assert.Equal(t, "pptx", p.Format)

	_, err = Build("/tmp/slides.md", "md", Options{OutboundDefault: "json"})
	assert.ErrorIs(t, err, fault.ErrUnknownFormat)
}

func TestBuildExplicitMarkdownSelfOverwrite(t *testing.T) {
	_, err := Build("/tmp/readme.md", "md", Options{FormatExplicit: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrSelfOverwrite)

	p, err := Build("/tmp/readme.md", "md", Options{FormatExplicit: true, OutputDir: "/tmp/out"})
	require.NoError(t, err)
	assert.Equal(t, Inbound, p.Direction)
	assert.Equal(t, "md", p.Format)
	assert.Equal(t, "/tmp/out/readme.md", p.Output)
}

func TestBuildInvalidDirection(t *testing.T) {
	_, err := Build("/tmp/doc.pdf", "docx", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrInvalidDirection)
	hint := fault.HintOf(err)
	assert.Contains(t, hint, ".md")
	assert.Contains(t, hint, "docx, pptx, html")
}

func TestBuildInbound(t *testing.T) {
	tests := []struct {
		input, format string
		opts          Options
		wantFormat    string
		wantOutput    string
	}{
		{"/data/report.pdf", "md", Options{}, "md", "/data/report.md"},
		{"/data/report.pdf", "", Options{}, "md", "/data/report.md"},
		{"/data/sheet.xlsx", "JSON", Options{}, "json", "/data/sheet.json"},
		{"/data/scan.png", "yaml", Options{OutputDir: "/out"}, "yaml", "/out/scan.yaml"},
		{"/data/notes.txt", "text", Options{}, "text", "/data/notes.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.input+"->"+tt.format, func(t *testing.T) {
			p, err := Build(tt.input, tt.format, tt.opts)
			if tt.wantOutput == tt.input {
				assert.ErrorIs(t, err, fault.ErrSelfOverwrite)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Inbound, p.Direction)
			assert.Equal(t, tt.wantFormat, p.Format)
			assert.Equal(t, tt.wantOutput, p.Output)
		})
	}
}

func TestBuildUnknownFormat(t *testing.T) {
	_, err := Build("/tmp/a.pdf", "odt", Options{})
	assert.ErrorIs(t, err, fault.ErrUnknownFormat)
}

func TestBuildRelativeInputIsAbsolutized(t *testing.T) {
	p, err := Build("notes/todo.md", "html", Options{FormatExplicit: true, PandocArgs: []string{"--toc"}})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(p.Input))
	assert.True(t, filepath.IsAbs(p.Output))
	assert.True(t, strings.HasSuffix(p.Output, filepath.Join("notes", "todo.html")))
	assert.Equal(t, []string{"--toc"}, p.PandocArgs)
}

func TestBuildEmptyArgsNormalized(t *testing.T) {
	p, err := Build("/tmp/a.md", "docx", Options{PandocArgs: []string{}})
	require.NoError(t, err)
	assert.Nil(t, p.PandocArgs)
}

func TestResolveOutputPath(t *testing.T) {
	got, err := ResolveOutputPath("a/b.pdf", "md", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("a", "b.md"), got)

	out := t.TempDir()
	again, err := ResolveOutputPath(got, "json", out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "b.json"), again)
	absA, _ := filepath.Abs("a")
	assert.False(t, strings.HasPrefix(again, absA+string(filepath.Separator)))

	got, err = ResolveOutputPath("/srv/in/archive.tar.gz", "md", "")
	require.NoError(t, err)
	assert.Equal(t, "/srv/in/archive.tar.md", got)

	_, err = ResolveOutputPath("a/b.pdf", "epub", "")
	assert.ErrorIs(t, err, fault.ErrUnknownFormat)
}

func TestContainedJoinRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"../evil.md", "../../etc/passwd", "..", "."} {
		_, err := containedJoin(dir, name)
		assert.ErrorIs(t, err, fault.ErrPathEscape, name)
	}
	got, err := containedJoin(dir, "ok.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ok.md"), got)
}

func TestBuildPandocArgsDedup(t *testing.T) {
	args, err := BuildPandocArgs("html", &config.Config{}, "", []string{"--standalone", "--toc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"--standalone", "--toc"}, args)
}

func TestBuildPandocArgsTemplateReplacesConfig(t *testing.T) {
	cfg := &config.Config{
		Pandoc: map[string][]string{"docx": {"--toc"}},
		Templates: map[string]config.Template{
			"report": {Format: "docx", PandocArgs: []string{"--reference-doc=x"}},
		},
	}
	args, err := BuildPandocArgs("docx", cfg, "report", []string{})
	require.NoError(t, err)
	assert.Contains(t, args, "--reference-doc=x")
	assert.NotContains(t, args, "--toc")

	args, err = BuildPandocArgs("docx", cfg, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"--toc"}, args)
}

func TestBuildPandocArgsPrecedence(t *testing.T) {
	cfg := &config.Config{
		Pandoc: map[string][]string{"html": {"--toc-depth=2", "--css=base.css", "--toc"}},
	}
	args, err := BuildPandocArgs("html", cfg, "", []string{"--toc-depth=4", "--number-sections"})
	require.NoError(t, err)
	assert.Equal(t, []string{"--standalone", "--css=base.css", "--toc", "--toc-depth=4", "--number-sections"}, args)
}

func TestBuildPandocArgsTemplateErrors(t *testing.T) {
	cfg := &config.Config{
		Templates: map[string]config.Template{
			"deck": {Format: "pptx"},
		},
	}
	_, err := BuildPandocArgs("docx", cfg, "missing", nil)
	require.ErrorIs(t, err, fault.ErrUnknownTemplate)
	assert.Contains(t, fault.HintOf(err), "deck")

	_, err = BuildPandocArgs("docx", cfg, "deck", nil)
	assert.ErrorIs(t, err, fault.ErrUnknownTemplate)

	_, err = BuildPandocArgs("md", cfg, "", nil)
	assert.ErrorIs(t, err, fault.ErrInvalidDirection)

	f, err := TemplateFormat(cfg, "DECK")
	require.NoError(t, err)
	assert.Equal(t, "pptx", f)
}

func TestDedupArgs(t *testing.T) {
	tests := []struct {
		in, want []string
	}{
		{nil, []string{}},
		{[]string{"-s", "-s"}, []string{"-s"}},
		{[]string{"--a=1", "--b", "--a=2"}, []string{"--b", "--a=2"}},
		{[]string{"--metadata=title=A", "--metadata=lang=en"}, []string{"--metadata=lang=en"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dedupArgs(tt.in))
	}
}

func TestFormats(t *testing.T) {
	assert.Equal(t, []string{"md", "text", "json", "yaml"}, FormatNames(Inbound))
	assert.Equal(t, []string{"docx", "pptx", "html"}, FormatNames(Outbound))
	assert.True(t, IsMarkdownPath("README.MD"))
	assert.True(t, IsMarkdownPath("notes.markdown"))
	assert.False(t, IsMarkdownPath("doc.pdf"))
	assert.Len(t, Formats(), 7)
}
