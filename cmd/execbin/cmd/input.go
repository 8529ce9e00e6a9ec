/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blacktop/execbin/internal/magic"
	"github.com/blacktop/execbin/pkg/plist"
)

type input struct {
	Path string
	App  *plist.AppInfo
	Size int64
}

// resolveInput accepts a Mach-O file or an .app bundle and returns the
// executable to inspect.
func resolveInput(arg string) (*input, error) {
	in := &input{Path: filepath.Clean(arg)}

	fi, err := os.Stat(in.Path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file %s does not exist", in.Path)
	} else if err != nil {
		return nil, err
	}

	if fi.IsDir() {
		in.App, in.Path, err = plist.ReadAppInfo(in.Path)
		if err != nil {
			return nil, err
		}
		if fi, err = os.Stat(in.Path); err != nil {
			return nil, fmt.Errorf("bundle executable: %w", err)
		}
	}
	in.Size = fi.Size()

	if ok, err := magic.IsMachO(in.Path); !ok {
		return nil, fmt.Errorf("%s: %w", in.Path, err)
	}

	return in, nil
}
