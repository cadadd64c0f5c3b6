// test module for package report

package report_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrej220/octahe/internal/deploy"
	"github.com/andrej220/octahe/internal/report"
	"github.com/andrej220/octahe/internal/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = "{\n    \"key\": \"value\"\n}"

type MockSerializer struct {
	Bytes []byte
	Err   error
}

func (s MockSerializer) Marshal(data any) ([]byte, error) {
	return s.Bytes, s.Err
}

type MockWriter struct {
	Data map[string][]byte
	Err  error
}

func (w *MockWriter) Write(filename string, data []byte) error {
	if w.Data == nil {
		w.Data = make(map[string][]byte)
	}
	w.Data[filename] = data
	return w.Err
}

func TestWriteTo(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		data        any
		serializer  report.Serializer
		writer      report.Writer
		expectedErr bool
	}{
		{
			name:       "valid input",
			filename:   filepath.Join(t.TempDir(), "report.json"),
			data:       map[string]string{"key": "value"},
			serializer: MockSerializer{Bytes: []byte(sampleJSON)},
			writer:     &MockWriter{},
		},
		{
			name:        "empty filename",
			data:        map[string]string{"key": "value"},
			serializer:  MockSerializer{Bytes: []byte(sampleJSON)},
			writer:      &MockWriter{},
			expectedErr: true,
		},
		{
			name:        "nil summary",
			filename:    "report.json",
			serializer:  MockSerializer{Bytes: []byte(sampleJSON)},
			writer:      &MockWriter{},
			expectedErr: true,
		},
		{
			name:        "serializer error",
			filename:    "report.json",
			data:        map[string]string{"key": "value"},
			serializer:  MockSerializer{Err: fmt.Errorf("serialization failed")},
			writer:      &MockWriter{},
			expectedErr: true,
		},
		{
			name:        "writer error",
			filename:    "report.json",
			data:        map[string]string{"key": "value"},
			serializer:  MockSerializer{Bytes: []byte(sampleJSON)},
			writer:      &MockWriter{Err: fmt.Errorf("write failed")},
			expectedErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := report.WriteTo(tt.data, tt.filename, tt.serializer, tt.writer)
			if tt.expectedErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			if writer, ok := tt.writer.(*MockWriter); ok {
				assert.Equal(t, sampleJSON, string(writer.Data[tt.filename]))
			}
		})
	}
}

func TestFileWriterOverwrite(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "nested", "report.json")

	require.NoError(t, report.FileWriter{}.Write(filename, []byte("{}")))
	assert.ErrorIs(t, report.FileWriter{}.Write(filename, []byte("{}")), os.ErrExist)
	assert.NoError(t, report.FileWriter{Overwrite: true}.Write(filename, []byte("[]")))

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestWriteSummary(t *testing.T) {
	summary := &deploy.Summary{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
		Steps: []deploy.StepResult{
			{Index: 1, Key: task.KeyRun, Description: "echo hi", Outcome: task.Degraded, TaskState: task.Degraded, Dispatched: 3},
		},
		Targets: []deploy.TargetResult{
			{Name: "b", Address: "deploy@b:22", State: "failed", FailedStep: 1, Diagnostic: "connection refused"},
		},
	}
	filename := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, report.Write(summary, filename))

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	steps := decoded["steps"].([]any)
	assert.Equal(t, "degraded", steps[0].(map[string]any)["outcome"])
	targets := decoded["targets"].([]any)
	assert.Equal(t, float64(1), targets[0].(map[string]any)["failed_step"])
	assert.Equal(t, summary.RunID.String(), decoded["run_id"])
}
