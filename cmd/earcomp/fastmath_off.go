//go:build !fastmath

package main

const fastMath = false
