// Command orderctl seeds, reports on and exports delivery orders.
package main

func main() {
	Execute()
}
