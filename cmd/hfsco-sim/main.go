// Command hfsco-sim drives a Hands-Free audio session against a simulated
// controller and prints every transition it goes through.
package main

import "os"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}
