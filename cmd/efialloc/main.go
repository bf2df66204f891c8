// Command efialloc exercises the arbitrary-alignment pool allocator against a
// simulated firmware pool.
package main

func main() {
	execute()
}
