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
	"errors"
	"fmt"
	"os"

	"github.com/blacktop/execbin/pkg/macho"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(archesCmd)
	archesCmd.MarkZshCompPositionalArgumentFile(1)
}

// archesCmd represents the arches command
var archesCmd = &cobra.Command{
	Use:           "arches <MACHO|APP>",
	Short:         "List the architectures in a universal MachO",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := resolveInput(args[0])
		if err != nil {
			return err
		}

		data, err := os.ReadFile(in.Path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %v", in.Path, err)
		}

		arches, err := macho.Arches(data)
		if errors.Is(err, macho.ErrNotFat) {
			bin, err := macho.New(in.Path, data)
			if err != nil {
				return err
			}
			fmt.Printf("%s (thin)\n", archColor(bin.Arch()))
			return nil
		} else if err != nil {
			return err
		}

		for _, fa := range arches {
			fmt.Printf("%-8s %s %s\n",
				archColor(fa.Arch()),
				faintColor(fmt.Sprintf("%s/%s", fa.CPU, fa.SubCPU.String(fa.CPU))),
				unresolvedColor(fmt.Sprintf("offset=%#x size=%s", fa.Offset, humanize.Bytes(fa.Size))),
			)
		}

		return nil
	},
}
