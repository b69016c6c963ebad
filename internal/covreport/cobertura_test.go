package covreport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const coberturaXML = `<?xml version="1.0" ?>
<coverage version="7.4.4" timestamp="1718000000" lines-valid="6" lines-covered="4" line-rate="0.6667" branch-rate="0" complexity="0">
  <sources>
    <source>/builds/acme/app</source>
  </sources>
  <packages>
    <package name="app.api" line-rate="0.6">
      <classes>
        <class name="views.py" filename="app/api/views.py" line-rate="0.6">
          <methods/>
          <lines>
            <line number="1" hits="1"/>
            <line number="4" hits="0"/>
            <line number="7" hits="3"/>
          </lines>
        </class>
      </classes>
    </package>
    <package name="app.tools" line-rate="1">
      <classes>
        <class name="cli.py" filename="cli.py" line-rate="1">
          <methods/>
          <lines>
            <line number="2" hits="1"/>
          </lines>
        </class>
      </classes>
    </package>
    <package name="." line-rate="0">
      <classes>
        <class name="setup.py" filename="setup.py" line-rate="0">
          <methods/>
          <lines>
            <line number="1" hits="0"/>
          </lines>
        </class>
      </classes>
    </package>
  </packages>
</coverage>`

const coberturaSplitClassXML = `<?xml version="1.0" ?>
<coverage lines-valid="2" lines-covered="1" line-rate="0.5">
  <packages>
    <package name="app">
      <classes>
        <class name="Widget" filename="app/widget.py">
          <lines>
            <line number="5" hits="0"/>
            <line number="6" hits="1"/>
          </lines>
        </class>
        <class name="WidgetFactory" filename="app/widget.py">
          <lines>
            <line number="5" hits="2"/>
          </lines>
        </class>
      </classes>
    </package>
  </packages>
</coverage>`

func TestCoberturaReader_Read(t *testing.T) {
	reader := &CoberturaReader{}

	t.Run("should key files by their filename attribute", func(t *testing.T) {
		report, err := reader.Read(writeReportFile(t, "coverage.xml", coberturaXML))
		require.NoError(t, err)

		lines, ok := report.File("app/api/views.py")
		require.True(t, ok)
		assert.Equal(t, FileCoverage{1: true, 4: false, 7: true}, lines)
	})

	t.Run("should mark any executed line covered regardless of hit count", func(t *testing.T) {
		report, err := reader.Read(writeReportFile(t, "coverage.xml", coberturaXML))
		require.NoError(t, err)

		lines, ok := report.File("app/api/views.py")
		require.True(t, ok)
		assert.True(t, lines[7])
	})

	t.Run("should derive the key from the dotted package when the filename is bare", func(t *testing.T) {
		report, err := reader.Read(writeReportFile(t, "coverage.xml", coberturaXML))
		require.NoError(t, err)

		lines, ok := report.File("app/tools/cli.py")
		require.True(t, ok)
		assert.Equal(t, FileCoverage{2: true}, lines)
	})

	t.Run("should keep repository-root files for totals", func(t *testing.T) {
		report, err := reader.Read(writeReportFile(t, "coverage.xml", coberturaXML))
		require.NoError(t, err)

		lines, ok := report.File("setup.py")
		require.True(t, ok)
		assert.Equal(t, FileCoverage{1: false}, lines)
	})

	t.Run("should merge classes sharing a filename and keep executed lines covered", func(t *testing.T) {
		report, err := reader.Read(writeReportFile(t, "coverage.xml", coberturaSplitClassXML))
		require.NoError(t, err)

		lines, ok := report.File("app/widget.py")
		require.True(t, ok)
		assert.Equal(t, FileCoverage{5: true, 6: true}, lines)
	})

	t.Run("should return a parse error for malformed XML", func(t *testing.T) {
		_, err := reader.Read(writeReportFile(t, "coverage.xml", "<coverage><packages>"))
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, FormatCobertura, parseErr.Format)
	})
}

func TestCoberturaReader_Resolve(t *testing.T) {
	reader := &CoberturaReader{}
	report, err := reader.Read(writeReportFile(t, "coverage.xml", coberturaXML))
	require.NoError(t, err)

	t.Run("should resolve nested paths as themselves", func(t *testing.T) {
		key, ok := report.Resolve("app/api/views.py")
		require.True(t, ok)
		assert.Equal(t, "app/api/views.py", key)
	})

	t.Run("should refuse repository-root paths", func(t *testing.T) {
		_, ok := report.Resolve("setup.py")
		assert.False(t, ok)
	})
}
