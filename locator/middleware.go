package locator

import "context"

// Middleware 在执行前改写一条指令链。
// 只能替换节点的值，必须保持节点数量和顺序不变。
type Middleware func(ctx context.Context, chain Chain) (Chain, error)

// Checker 在任何中间件运行之前检查一条链，不得产生副作用
type Checker func(ctx context.Context, chain Chain) error

// Pipeline 按顺序组合的中间件
type Pipeline []Middleware

// Apply 依次应用每个中间件；多链输入时逐条链应用，输出保持与输入相同的形态
func (p Pipeline) Apply(ctx context.Context, program Program) (Program, error) {
	for _, mw := range p {
		chains := make([]Chain, 0, len(program.Chains))
		for _, chain := range program.Chains {
			rewritten, err := mw(ctx, chain)
			if err != nil {
				return Program{}, err
			}
			chains = append(chains, rewritten)
		}
		program = Program{Chains: chains, Batch: program.Batch}
	}
	return program, nil
}
