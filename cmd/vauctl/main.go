// Command vauctl generates test PKIs, checks trust stores, runs the mock gateway
// and debugs secure messaging APDUs.
package main

import (
	"fmt"
	"os"
)

func main() {
	err := newRootCmd().Execute()
	if nil != err {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
