package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/linchenxuan/lobbyd"
)

// stdinPrompt asks the operator for another port after a failed bind. Empty input or
// end of input gives up.
func stdinPrompt(in io.Reader, out io.Writer) lobbyd.PortPrompt {
	sc := bufio.NewScanner(in)
	return func(name string, bindErr error) (string, bool) {
		fmt.Fprintf(out, "%s transport could not bind: %v\n", name, bindErr)
		for {
			fmt.Fprint(out, "Enter another port (empty to quit): ")
			if !sc.Scan() {
				return "", false
			}
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				return "", false
			}
			port, err := strconv.ParseUint(text, 10, 16)
			if err != nil {
				fmt.Fprintf(out, "%q is not a port number\n", text)
				continue
			}
			return ":" + strconv.FormatUint(port, 10), true
		}
	}
}
