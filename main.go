package main

import "course-enrollment/cmd"

func main() {
	cmd.Execute()
}
