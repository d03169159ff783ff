package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepulse/internal/config"
)

// setupTestEnv builds a CSVWriter over a temporary directory layout.
func setupTestEnv(t *testing.T) (*CSVWriter, string) {
	t.Helper()

	tempDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "reports"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "cache"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "data"), 0755))

	writer := NewCSVWriter(&config.Paths{
		BaseDir:    tempDir,
		DataDir:    filepath.Join(tempDir, "data"),
		CacheDir:   filepath.Join(tempDir, "cache"),
		ReportsDir: filepath.Join(tempDir, "reports"),
	})
	return writer, tempDir
}

func TestNewCSVWriter(t *testing.T) {
	paths := &config.Paths{}
	writer := NewCSVWriter(paths)

	assert.NotNil(t, writer)
	assert.Equal(t, paths, writer.paths)
}

func TestCSVWriter_WriteCSV(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	tests := []struct {
		name        string
		filePath    string
		options     WriteOptions
		expectError bool
		validate    func(t *testing.T, filePath string)
	}{
		{
			name:     "basic write with headers",
			filePath: "test_basic.csv",
			options: WriteOptions{
				Headers: []string{"Group", "Total", "Gini"},
				Records: [][]string{
					{"puzzle", "400.00", "0.2500"},
					{"racing", "50.00", ""},
				},
				Append:    false,
				BOMPrefix: false,
			},
			validate: func(t *testing.T, filePath string) {
				content, err := os.ReadFile(filePath)
				require.NoError(t, err)

				lines := strings.Split(strings.TrimSpace(string(content)), "\n")
				assert.Len(t, lines, 3)
				assert.Equal(t, "Group,Total,Gini", lines[0])
				assert.Equal(t, "puzzle,400.00,0.2500", lines[1])
				assert.Equal(t, "racing,50.00,", lines[2])
			},
		},
		{
			name:     "write with BOM prefix",
			filePath: "test_bom.csv",
			options: WriteOptions{
				Headers: []string{"Name", "Value"},
				Records: [][]string{
					{"Game One", "150.25"},
				},
				Append:    false,
				BOMPrefix: true,
			},
			validate: func(t *testing.T, filePath string) {
				content, err := os.ReadFile(filePath)
				require.NoError(t, err)

				assert.True(t, bytes.HasPrefix(content, []byte{0xEF, 0xBB, 0xBF}))

				contentWithoutBOM := content[3:]
				lines := strings.Split(strings.TrimSpace(string(contentWithoutBOM)), "\n")
				assert.Equal(t, "Name,Value", lines[0])
				assert.Equal(t, "Game One,150.25", lines[1])
			},
		},
		{
			name:     "write without headers",
			filePath: "test_no_headers.csv",
			options: WriteOptions{
				Headers: nil,
				Records: [][]string{
					{"Data1", "Data2"},
					{"Data3", "Data4"},
				},
			},
			validate: func(t *testing.T, filePath string) {
				content, err := os.ReadFile(filePath)
				require.NoError(t, err)

				lines := strings.Split(strings.TrimSpace(string(content)), "\n")
				assert.Len(t, lines, 2)
				assert.Equal(t, "Data1,Data2", lines[0])
			},
		},
		{
			name:     "empty records",
			filePath: "test_empty.csv",
			options: WriteOptions{
				Headers: []string{"Col1", "Col2"},
				Records: [][]string{},
			},
			validate: func(t *testing.T, filePath string) {
				content, err := os.ReadFile(filePath)
				require.NoError(t, err)

				lines := strings.Split(strings.TrimSpace(string(content)), "\n")
				assert.Len(t, lines, 1)
				assert.Equal(t, "Col1,Col2", lines[0])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := writer.WriteCSV(tt.filePath, tt.options)

			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			tt.validate(t, filepath.Join(tempDir, "reports", tt.filePath))
		})
	}
}

func TestCSVWriter_WriteSimpleCSV(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	headers := []string{"Group", "Rank", "Value"}
	records := [][]string{
		{"puzzle", "1", "300.00"},
		{"puzzle", "2", "100.00"},
	}

	err := writer.WriteSimpleCSV("simple_test.csv", headers, records)
	assert.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(tempDir, "reports", "simple_test.csv"))
	require.NoError(t, err)

	// WriteSimpleCSV always prefixes the BOM
	assert.True(t, bytes.HasPrefix(content, []byte{0xEF, 0xBB, 0xBF}))

	lines := strings.Split(strings.TrimSpace(string(content[3:])), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "Group,Rank,Value", lines[0])
	assert.Equal(t, "puzzle,1,300.00", lines[1])
}

func TestCSVWriter_AppendToCSV(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	filePath := "append_test.csv"
	err := writer.WriteSimpleCSV(filePath, []string{"Col1", "Col2"}, [][]string{
		{"Initial1", "Initial2"},
	})
	require.NoError(t, err)

	err = writer.AppendToCSV(filePath, [][]string{
		{"Appended1", "Appended2"},
	})
	assert.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(tempDir, "reports", filePath))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content[3:])), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "Col1,Col2", lines[0])
	assert.Equal(t, "Initial1,Initial2", lines[1])
	assert.Equal(t, "Appended1,Appended2", lines[2])
}

func TestCSVWriter_ResolvePath(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	tests := []struct {
		name      string
		inputPath string
		expected  string
	}{
		{
			name:      "absolute path",
			inputPath: "/absolute/path/file.csv",
			expected:  "/absolute/path/file.csv",
		},
		{
			name:      "cache path",
			inputPath: "cache/entries.csv",
			expected:  filepath.Join(tempDir, "cache", "entries.csv"),
		},
		{
			name:      "data path",
			inputPath: "data/apps.csv",
			expected:  filepath.Join(tempDir, "data", "apps.csv"),
		},
		{
			name:      "default to reports",
			inputPath: "rankings.csv",
			expected:  filepath.Join(tempDir, "reports", "rankings.csv"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, writer.resolvePath(tt.inputPath))
		})
	}
}

func TestCSVWriter_SpecialCharacters(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	headers := []string{"Name", "Publisher", "Notes"}
	records := [][]string{
		{"Match, Three", "Studio \"Quoted\"", "Notes with\nnewlines"},
		{"Åventyr", "Émoji: 😀🚀", "Special chars: ñáéíóú"},
	}

	err := writer.WriteSimpleCSV("special_chars.csv", headers, records)
	assert.NoError(t, err)

	file, err := os.Open(filepath.Join(tempDir, "reports", "special_chars.csv"))
	require.NoError(t, err)
	defer file.Close()

	// Skip BOM
	bom := make([]byte, 3)
	_, err = file.Read(bom)
	require.NoError(t, err)

	reader := csv.NewReader(file)
	allRecords, err := reader.ReadAll()
	require.NoError(t, err)

	require.Len(t, allRecords, 3)
	assert.Equal(t, headers, allRecords[0])
	assert.Equal(t, "Match, Three", allRecords[1][0])
	assert.Equal(t, "Studio \"Quoted\"", allRecords[1][1])
	assert.Equal(t, "Notes with\nnewlines", allRecords[1][2])
	assert.Equal(t, "Åventyr", allRecords[2][0])
}

func TestStreamWriter_RoundTrip(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	stream, err := writer.CreateStreamWriter("streamed.csv", []string{"Rank", "ID"})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, stream.WriteRecord([]string{formatInt(i), "id-" + formatInt(i)}))
	}
	require.NoError(t, stream.Close())

	content, err := os.ReadFile(filepath.Join(tempDir, "reports", "streamed.csv"))
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(content, []byte{0xEF, 0xBB, 0xBF}))
	lines := strings.Split(strings.TrimSpace(string(content[3:])), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "Rank,ID", lines[0])
	assert.Equal(t, "3,id-3", lines[3])
}

func TestCSVWriter_ConcurrentWrites(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	const numGoroutines = 8

	var wg sync.WaitGroup
	errChan := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			filePath := filepath.Join("concurrent", "file_"+string(rune('A'+id))+".csv")
			records := [][]string{
				{"Record" + string(rune('A'+id)), formatInt(id)},
			}
			if err := writer.WriteSimpleCSV(filePath, []string{"Name", "Number"}, records); err != nil {
				errChan <- err
			}
		}(i)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		assert.NoError(t, err)
	}

	for i := 0; i < numGoroutines; i++ {
		filePath := filepath.Join(tempDir, "reports", "concurrent", "file_"+string(rune('A'+i))+".csv")
		content, err := os.ReadFile(filePath)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(content[3:])), "\n")
		assert.Len(t, lines, 2)
	}
}

func TestCSVWriter_ErrorWhenDirectoryIsFile(t *testing.T) {
	tempDir := t.TempDir()
	blocker := filepath.Join(tempDir, "reports")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0644))

	writer := NewCSVWriter(&config.Paths{ReportsDir: blocker})

	err := writer.WriteCSV("test.csv", WriteOptions{
		Headers: []string{"Test"},
		Records: [][]string{{"Data"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to")
}
