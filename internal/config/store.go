package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

const (
	// EnvConfigDir overrides the config directory.
	EnvConfigDir = "NOTIFYRELAY_CONFIG_DIR"
	// DirName is the config directory under the user's home.
	DirName = ".notifyrelay"

	masterBase = "master"
	agentFile  = "agent.json"
	daemonFile = "daemon.json"
)

// DaemonRecord is the persisted install record (daemon.json). Its presence is
// what makes the relay "installed" as far as lifecycle commands are concerned.
type DaemonRecord struct {
	Installed      bool      `json:"installed"`
	InstalledAt    time.Time `json:"installedAt"`
	Label          string    `json:"label"`
	ProgramPath    string    `json:"programPath"`
	RuntimePath    string    `json:"runtimePath"`
	DescriptorPath string    `json:"descriptorPath"`
	LogPath        string    `json:"logPath"`
	ErrorLogPath   string    `json:"errorLogPath"`
	Supervisor     string    `json:"supervisor"`
}

// Store reads and writes the persisted records in one directory.
// It holds no other state; callers may construct as many as they like.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store { return &Store{Dir: dir} }

// DefaultDir returns $NOTIFYRELAY_CONFIG_DIR or ~/.notifyrelay.
func DefaultDir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigDir)); v != "" {
		return ExpandHome(v)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", s.Dir, err)
	}
	return nil
}

func (s *Store) LogsDir() string { return filepath.Join(s.Dir, "logs") }

// MasterPath returns master.json, or master.yaml/master.yml when only one of
// those exists.
func (s *Store) MasterPath() string {
	jsonPath := filepath.Join(s.Dir, masterBase+".json")
	if fileExists(jsonPath) {
		return jsonPath
	}
	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(s.Dir, masterBase+ext)
		if fileExists(p) {
			return p
		}
	}
	return jsonPath
}

func (s *Store) AgentPath() string  { return filepath.Join(s.Dir, agentFile) }
func (s *Store) DaemonPath() string { return filepath.Join(s.Dir, daemonFile) }

// ReadMaster returns (nil, nil) when no master config exists.
func (s *Store) ReadMaster() (*MasterConfig, error) {
	path := s.MasterPath()
	var cfg MasterConfig
	ok, err := readInto(path, &cfg)
	if err != nil || !ok {
		return nil, wrapConfigErr(path, RemediationMaster, err)
	}
	if err := ValidateMaster(&cfg); err != nil {
		return nil, wrapConfigErr(path, RemediationMaster, err)
	}
	return &cfg, nil
}

// RequireMaster is ReadMaster with absence reported as a ConfigurationError.
func (s *Store) RequireMaster() (*MasterConfig, error) {
	cfg, err := s.ReadMaster()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, &ConfigurationError{Path: s.MasterPath(), Remediation: RemediationMaster, Err: ErrNotFound}
	}
	return cfg, nil
}

func (s *Store) WriteMaster(cfg *MasterConfig) error {
	if err := ValidateMaster(cfg); err != nil {
		return err
	}
	return s.write(s.MasterPath(), cfg)
}

func (s *Store) ReadAgent() (*AgentConfig, error) {
	path := s.AgentPath()
	var cfg AgentConfig
	ok, err := readInto(path, &cfg)
	if err != nil || !ok {
		return nil, wrapConfigErr(path, RemediationAgent, err)
	}
	return &cfg, nil
}

func (s *Store) RequireAgent() (*AgentConfig, error) {
	cfg, err := s.ReadAgent()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, &ConfigurationError{Path: s.AgentPath(), Remediation: RemediationAgent, Err: ErrNotFound}
	}
	return cfg, nil
}

func (s *Store) WriteAgent(cfg *AgentConfig) error {
	if err := validateStruct(cfg); err != nil {
		return fmt.Errorf("agent config: %w", err)
	}
	return s.write(s.AgentPath(), cfg)
}

func (s *Store) ReadDaemon() (*DaemonRecord, error) {
	path := s.DaemonPath()
	var rec DaemonRecord
	ok, err := readInto(path, &rec)
	if err != nil || !ok {
		return nil, wrapConfigErr(path, "", err)
	}
	return &rec, nil
}

func (s *Store) WriteDaemon(rec *DaemonRecord) error {
	if rec == nil {
		return errors.New("daemon record is nil")
	}
	return s.write(s.DaemonPath(), rec)
}

// RemoveDaemon deletes daemon.json. A missing file is not an error.
func (s *Store) RemoveDaemon() error {
	if err := os.Remove(s.DaemonPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", s.DaemonPath(), err)
	}
	return nil
}

// ParseMasterFile reads and validates a master config at an explicit path.
// Unlike ReadMaster a missing file is an error.
func ParseMasterFile(path string) (*MasterConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg MasterConfig
	if err := decodeStrict(path, b, &cfg); err != nil {
		return nil, err
	}
	if err := ValidateMaster(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readInto(path string, v any) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := decodeStrict(path, b, v); err != nil {
		return false, err
	}
	return true, nil
}

func wrapConfigErr(path, remediation string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigurationError{Path: path, Remediation: remediation, Err: err}
}

func (s *Store) write(path string, v any) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	data, err := encode(path, v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFileAtomic(path, data, 0o600)
}

func encode(path string, v any) ([]byte, error) {
	jb, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	if !isYAMLPath(path) {
		return append(jb, '\n'), nil
	}
	var generic any
	if err := json.Unmarshal(jb, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
