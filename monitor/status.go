package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type portStatus struct {
	Device      string `json:"device"`
	Label       string `json:"label"`
	Board       string `json:"board"`
	Function    string `json:"function"`
	VID         string `json:"vid"`
	PID         string `json:"pid"`
	Status      string `json:"status"`
	LogFile     string `json:"log_file"`
	BytesLogged int64  `json:"bytes_logged"`
}

type statusDoc struct {
	Pid       int          `json:"pid"`
	Session   string       `json:"session"`
	PortCount int          `json:"port_count"`
	Ports     []portStatus `json:"ports"`
}

func (m *Monitor) statusJSON() ([]byte, error) {
	doc := statusDoc{
		Pid:       os.Getpid(),
		Session:   filepath.Base(m.sessionPath),
		PortCount: len(m.ports),
		Ports:     make([]portStatus, 0, len(m.ports)),
	}

	for _, mp := range m.ports {
		id := mp.identity
		board := "Unknown"
		if id.BoardOverride != "" {
			board = id.BoardOverride
		} else if id.Known != nil && len(id.Known.Boards) > 0 {
			board = id.Known.Boards[0]
		}
		function := id.Function
		if function == "" {
			function = "Unknown"
		}
		status := "monitoring"
		if mp.yielded {
			status = "yielded"
		}

		doc.Ports = append(doc.Ports, portStatus{
			Device:      id.DevPath,
			Label:       id.Label,
			Board:       board,
			Function:    function,
			VID:         fmt.Sprintf("%04x", id.VID),
			PID:         fmt.Sprintf("%04x", id.PID),
			Status:      status,
			LogFile:     mp.log.Path,
			BytesLogged: mp.log.BytesWritten(),
		})
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// writeStatus atomically replaces <base>/status.json.
func (m *Monitor) writeStatus() {
	b, err := m.statusJSON()
	if err != nil {
		return
	}
	path := filepath.Join(m.baseDir, "status.json")
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return
	}
	os.Rename(tmp, path)
}
