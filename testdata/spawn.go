package main

import "fmt"

func worker(id int, results chan int) {
	results <- id * 2
}

func main() {
	results := make(chan int, 3)
	for i := 0; i < 3; i++ {
		go worker(i, results)
	}

	sum := 0
	for i := 0; i < 3; i++ {
		sum += <-results
	}
	fmt.Println("sum:", sum)
}
