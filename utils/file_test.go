package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/stretchr/testify/assert"
)

type TestFile struct {
	Description string
	Path        string
	ExpectCode  int64
}

func TestCheckAndCreateFile(t *testing.T) {
	base := t.TempDir()
	assert.Nil(t, os.MkdirAll(filepath.Join(base, "exist"), 0770))

	testList := []*TestFile{
		{
			Description: "abs path & dir not exist",
			Path:        filepath.Join(base, "not", "exist", "f1"),
		},
		{
			Description: "abs path & dir exist",
			Path:        filepath.Join(base, "exist", "f2"),
		},
		{
			Description: "path is a directory",
			Path:        filepath.Join(base, "exist"),
			ExpectCode:  errs.OpenFileErrCode,
		},
	}

	for _, item := range testList {
		f, err := CheckAndCreateFile(item.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0660)
		if item.ExpectCode != 0 {
			assert.Equal(t, item.ExpectCode, errs.GetCode(err), item.Description)
			continue
		}
		assert.Nil(t, err, item.Description)
		assert.Nil(t, f.Close(), item.Description)
	}
}
