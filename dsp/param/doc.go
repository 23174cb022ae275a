// Package param describes automatable processor parameters and gives the
// processing loop a uniform view of them.
//
// A host supplies each parameter per process call either as a single value
// for the whole block or as one value per sample. [Values] hides the
// difference: the core algorithm only ever asks for the value at sample i.
package param
