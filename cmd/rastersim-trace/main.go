// Command rastersim-trace replays a textual command trace through the
// rastersim simulator and prints the final draw counters, the way
// ggdemo exercises gg.Context from a fixed script instead of live
// input.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/computegpu/rastersim"
	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/orchestrator"
)

func main() {
	var (
		width  = flag.Int("width", 64, "display width in pixels")
		height = flag.Int("height", 64, "display height in pixels")
		input  = flag.String("trace", "", "path to a trace file (default: stdin)")
	)
	flag.Parse()

	sim, err := rastersim.New(*width, *height)
	if err != nil {
		log.Fatalf("rastersim.New: %v", err)
	}

	src := os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("open trace: %v", err)
		}
		defer f.Close()
		src = f
	}

	r := newReplayer(sim)
	if err := r.run(src); err != nil {
		log.Fatalf("replay: %v", err)
	}

	for i, res := range r.results {
		fmt.Printf("draw %d: triangles=%d fragments=%d cullHZ=%d outOfView=%d cycles=%d\n",
			i, res.Triangles, len(res.Fragments), res.CullHZ, res.OutOfView, res.Cycles)
	}
	for _, w := range sim.Warnings() {
		fmt.Printf("warning: kind=%d detail=%q\n", w.Kind, w.Detail)
	}
}

// replayer interprets one line of trace syntax at a time against a
// Simulator. Supported commands:
//
//	viewport X Y W H
//	scissor X Y W H
//	depthtest on|off FUNC HZ(on|off)
//	msaa on|off SAMPLES
//	triangle x1 y1 z1 x2 y2 z2 x3 y3 z3
//	draw
//	zwrite X Y Z
//	clearz Z
//	clearc COLOR32(hex)
//	reset
//
// FUNC is one of: never less lequal equal gequal greater notequal always.
// Blank lines and lines starting with # are ignored.
type replayer struct {
	sim     *rastersim.Simulator
	pending [][4]float32 // accumulated triangle vertices awaiting "draw"
	results []*orchestrator.DrawResult
}

func newReplayer(sim *rastersim.Simulator) *replayer {
	return &replayer{sim: sim}
}

func (r *replayer) run(f *os.File) error {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := r.exec(line); err != nil {
			return fmt.Errorf("line %q: %w", line, err)
		}
	}
	return scanner.Err()
}

func (r *replayer) exec(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "viewport":
		vals, err := ints(fields[1:], 4)
		if err != nil {
			return err
		}
		return r.sim.SetViewport(int32(vals[0]), int32(vals[1]), uint32(vals[2]), uint32(vals[3]))

	case "scissor":
		vals, err := ints(fields[1:], 4)
		if err != nil {
			return err
		}
		return r.sim.SetScissor(true, int32(vals[0]), int32(vals[1]), uint32(vals[2]), uint32(vals[3]))

	case "depthtest":
		if len(fields) != 4 {
			return fmt.Errorf("depthtest wants 3 arguments, got %d", len(fields)-1)
		}
		fn, err := compareFunc(fields[2])
		if err != nil {
			return err
		}
		return r.sim.SetDepthTest(fields[1] == "on", fn, fields[3] == "on")

	case "triangle":
		vals, err := floats(fields[1:], 9)
		if err != nil {
			return err
		}
		r.pending = append(r.pending,
			[4]float32{vals[0], vals[1], vals[2], 1},
			[4]float32{vals[3], vals[4], vals[5], 1},
			[4]float32{vals[6], vals[7], vals[8], 1},
		)
		return nil

	case "msaa":
		if len(fields) != 3 {
			return fmt.Errorf("msaa wants 2 arguments, got %d", len(fields)-1)
		}
		samples, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		return r.sim.SetMSAA(fields[1] == "on", samples)

	case "zwrite":
		vals, err := floats(fields[1:], 3)
		if err != nil {
			return err
		}
		r.sim.QueueZStencilWrite(int32(vals[0]), int32(vals[1]), float64(vals[2]))
		return nil

	case "clearz":
		vals, err := floats(fields[1:], 1)
		if err != nil {
			return err
		}
		return r.sim.ClearZStencil(vals[0], 0)

	case "clearc":
		if len(fields) != 2 {
			return fmt.Errorf("clearc wants 1 argument, got %d", len(fields)-1)
		}
		c, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 32)
		if err != nil {
			return err
		}
		return r.sim.ClearColor(uint32(c))

	case "draw":
		return r.flushDraw()

	case "reset":
		r.pending = nil
		return r.sim.Reset()

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func (r *replayer) flushDraw() error {
	if len(r.pending)%3 != 0 {
		return fmt.Errorf("pending vertex count %d is not a multiple of 3", len(r.pending))
	}
	data := make([]byte, 0, len(r.pending)*16)
	for _, v := range r.pending {
		data = append(data, float32Bytes(v[0])...)
		data = append(data, float32Bytes(v[1])...)
		data = append(data, float32Bytes(v[2])...)
		data = append(data, float32Bytes(v[3])...)
	}
	if err := r.sim.BindStream(0, 0, data, 16, 0, gpucore.StreamFloat32, 4, false, false); err != nil {
		return err
	}
	res, err := r.sim.Draw(orchestrator.DrawParams{
		Primitive:   gpucore.PrimitiveTriangles,
		VertexCount: len(r.pending),
	})
	if err != nil {
		return err
	}
	r.results = append(r.results, res)
	r.pending = nil
	return nil
}

func ints(fields []string, n int) ([]int, error) {
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(fields))
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func floats(fields []string, n int) ([]float32, error) {
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func compareFunc(name string) (gpucore.CompareFunc, error) {
	switch name {
	case "never":
		return gpucore.CompareNever, nil
	case "less":
		return gpucore.CompareLess, nil
	case "lequal":
		return gpucore.CompareLessEqual, nil
	case "equal":
		return gpucore.CompareEqual, nil
	case "gequal":
		return gpucore.CompareGreaterEqual, nil
	case "greater":
		return gpucore.CompareGreater, nil
	case "notequal":
		return gpucore.CompareNotEqual, nil
	case "always":
		return gpucore.CompareAlways, nil
	default:
		return 0, fmt.Errorf("unknown compare function %q", name)
	}
}

func float32Bytes(v float32) []byte {
	bits := math.Float32bits(v)
	return []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
}
