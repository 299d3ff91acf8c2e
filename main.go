/*
Copyright © 2025 Zeno Belli xeno@os76.xyz
*/

package main

import "github.com/xenos76/certpeek/cmd"

func main() {
	cmd.Execute()
}
