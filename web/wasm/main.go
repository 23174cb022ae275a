//go:build js && wasm

package main

import (
	"syscall/js"

	"github.com/cwbudde/earcomp/internal/worklet"
)

var (
	engine = worklet.NewEngine()
	funcs  []js.Func
)

func main() {
	api := js.Global().Get("Object").New()

	api.Set("createCompressor", export(func(args []js.Value) any {
		h, err := engine.NewCompressor(sampleRate(args, 0))
		if err != nil {
			return err.Error()
		}
		return int(h)
	}))

	api.Set("createAutoGain", export(func(args []js.Value) any {
		ratio := 1.0
		if len(args) > 1 && args[1].Type() == js.TypeNumber {
			ratio = args[1].Float()
		}
		h, err := engine.NewAutoGain(sampleRate(args, 0), ratio)
		if err != nil {
			return err.Error()
		}
		return int(h)
	}))

	api.Set("release", export(func(args []js.Value) any {
		if len(args) < 1 {
			return false
		}
		return engine.Release(worklet.Handle(args[0].Int()))
	}))

	// process(handle, inputs, outputs, parameters) mirrors
	// AudioWorkletProcessor.process with a single output.
	api.Set("process", export(func(args []js.Value) any {
		if len(args) < 3 {
			return false
		}
		h := worklet.Handle(args[0].Int())
		inputs := readInputs(args[1])
		output := readChannels(args[2].Index(0))

		var params map[string][]float32
		if len(args) > 3 && args[3].Truthy() {
			params = readParams(args[3])
		}

		alive, err := engine.Process(h, inputs, output, params)
		if err != nil {
			return false
		}
		writeChannels(args[2].Index(0), output)
		return alive
	}))

	api.Set("postMessage", export(func(args []js.Value) any {
		if len(args) < 2 {
			return "postMessage: missing arguments"
		}
		msg := map[string]any{"type": args[1].Get("type").String()}
		if v := args[1].Get("value"); v.Type() == js.TypeNumber {
			msg["value"] = v.Float()
		}
		if err := engine.PostMessage(worklet.Handle(args[0].Int()), msg); err != nil {
			return err.Error()
		}
		return js.Null()
	}))

	api.Set("meter", export(func(args []js.Value) any {
		if len(args) < 1 {
			return js.Null()
		}
		m, err := engine.Meter(worklet.Handle(args[0].Int()))
		if err != nil {
			return js.Null()
		}
		obj := js.Global().Get("Object").New()
		obj.Set("gain", m.Gain)
		obj.Set("gainReductionDb", m.GainReductionDB)
		obj.Set("inputPeak", m.InputPeak)
		obj.Set("outputPeak", m.OutputPeak)
		return obj
	}))

	api.Set("parameterDescriptors", export(func(args []js.Value) any {
		kind := worklet.KindCompressor
		if len(args) > 0 {
			kind = args[0].String()
		}
		arr := js.Global().Get("Array").New()
		for _, info := range worklet.Descriptors() {
			if info.Kind != kind {
				continue
			}
			for _, d := range info.Params {
				obj := js.Global().Get("Object").New()
				obj.Set("name", d.Name)
				obj.Set("defaultValue", d.Default)
				obj.Set("minValue", d.Min)
				obj.Set("maxValue", d.Max)
				obj.Set("automationRate", "a-rate")
				arr.Call("push", obj)
			}
		}
		return arr
	}))

	js.Global().Set("EarComp", api)
	select {}
}

func sampleRate(args []js.Value, i int) float64 {
	if len(args) > i && args[i].Type() == js.TypeNumber {
		return args[i].Float()
	}
	return 48000
}

func readInputs(v js.Value) [][][]float32 {
	inputs := make([][][]float32, v.Length())
	for i := range inputs {
		inputs[i] = readChannels(v.Index(i))
	}
	return inputs
}

func readChannels(v js.Value) [][]float32 {
	if !v.Truthy() {
		return nil
	}
	channels := make([][]float32, v.Length())
	for ch := range channels {
		arr := v.Index(ch)
		buf := make([]float32, arr.Length())
		for i := range buf {
			buf[i] = float32(arr.Index(i).Float())
		}
		channels[ch] = buf
	}
	return channels
}

func writeChannels(v js.Value, channels [][]float32) {
	for ch, buf := range channels {
		arr := v.Index(ch)
		for i, s := range buf {
			arr.SetIndex(i, s)
		}
	}
}

func readParams(v js.Value) map[string][]float32 {
	keys := js.Global().Get("Object").Call("keys", v)
	params := make(map[string][]float32, keys.Length())
	for k := 0; k < keys.Length(); k++ {
		name := keys.Index(k).String()
		arr := v.Get(name)
		buf := make([]float32, arr.Length())
		for i := range buf {
			buf[i] = float32(arr.Index(i).Float())
		}
		params[name] = buf
	}
	return params
}

func export(fn func([]js.Value) any) js.Func {
	f := js.FuncOf(func(_ js.Value, args []js.Value) any {
		return fn(args)
	})
	funcs = append(funcs, f)
	return f
}
