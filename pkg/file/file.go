package file

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileOperations defines the file reads the verifier depends on.
type FileOperations interface {
	IsFileExists(filePath string) (bool, error)
	ReadFileRaw(filePath string) ([]byte, error)
	ReadYamlFile(filePath string, v any) error
}

// FileService implements the FileOperations interface using standard file operations.
type FileService struct{}

// NewFileService creates a new instance of FileService.
func NewFileService() *FileService {
	return &FileService{}
}

// IsFileExists checks if the file exists and returns boolean and error
func (fs *FileService) IsFileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return false, nil
	}

	// checking err == nil because of permission related error
	return err == nil, err
}

// ReadFileRaw reads the contents of the file at filePath and returns it as a byte array.
func (fs *FileService) ReadFileRaw(filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// ReadYamlFile reads YAML from the given file into v after expanding ${VAR} references
// from the environment. Unset variables are left untouched.
func (fs *FileService) ReadYamlFile(filePath string, v any) error {
	data, err := fs.ReadFileRaw(filePath)
	if err != nil {
		return err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(InterpolateEnv(data)))
	if err := decoder.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// InterpolateEnv replaces ${VAR_NAME} patterns with environment variable values.
func InterpolateEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.TrimSuffix(strings.TrimPrefix(string(match), "${"), "}")
		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		return match
	})
}
